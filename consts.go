// Copyright (c) 2024 Neomantra Corp
//
// Record layouts adapted from the NSE Capital Market segment's 15-minute
// snapshot feed and from the exchange's Securities.dat master file.
//
// All multi-byte integers in the wire formats are little-endian.

package nsefeed

// Kind identifies which of the five persisted record families a batch holds.
type Kind uint8

const (
	Kind_Unknown Kind = iota
	Kind_Market
	Kind_Index
	Kind_CallAuction
	Kind_Securities
	Kind_Bhavcopy
)

func (k Kind) String() string {
	switch k {
	case Kind_Market:
		return "MKT"
	case Kind_Index:
		return "IND"
	case Kind_CallAuction:
		return "CA2"
	case Kind_Securities:
		return "SECURITIES"
	case Kind_Bhavcopy:
		return "BHAVCOPY"
	default:
		return "UNKNOWN"
	}
}

// RHeader_Size is the fixed 8-byte header present on every snapshot record:
// transcode (u16) + timestamp (u32) + message_length (u16).
const RHeader_Size = 8

// Record sizes are format-pinned constants, not auto-detected at runtime.
// See Design Notes on why auto-sizing is unsafe for production use.
const (
	MarketSnapshotMsg_Size      = 96 // 8-byte header + 88-byte payload
	IndexSnapshotMsg_Size       = 52 // 8-byte header + 44-byte payload
	CallAuctionSnapshotMsg_Size = 86 // 8-byte header + 78-byte payload
)

// SecurityMaster_Transcode is the header transcode tag that marks a
// Securities.dat payload as carrying a security-master record; any other
// transcode value in the stream is skipped by MessageLength.
const SecurityMaster_Transcode = 7

// SettlementCycle describes how many business days after trade a security
// settles.
type SettlementCycle uint16

const (
	SettlementCycle_T0 SettlementCycle = 0
	SettlementCycle_T1 SettlementCycle = 1
)

func (s SettlementCycle) String() string {
	switch s {
	case SettlementCycle_T0:
		return "T+0"
	case SettlementCycle_T1:
		return "T+1"
	default:
		return "Unknown"
	}
}

// PermittedToTrade describes whether a listed security may currently trade
// on the Capital Market segment.
type PermittedToTrade uint16

const (
	PermittedToTrade_ListedNoTrade PermittedToTrade = 0
	PermittedToTrade_Permitted     PermittedToTrade = 1
	PermittedToTrade_BSEExclusive  PermittedToTrade = 2
)

func (p PermittedToTrade) String() string {
	switch p {
	case PermittedToTrade_ListedNoTrade:
		return "Listed but not permitted to trade"
	case PermittedToTrade_Permitted:
		return "Permitted to trade"
	case PermittedToTrade_BSEExclusive:
		return "BSE listed (BSE exclusive security)"
	default:
		return "Unknown"
	}
}

// interestingExtensions is the suffix map the watcher uses to decide whether
// a remote directory entry is a snapshot file worth decoding.
var interestingExtensions = map[string]Kind{
	".mkt.gz": Kind_Market,
	".ind.gz": Kind_Index,
	".ca2.gz": Kind_CallAuction,
}

// KindForSuffix returns the snapshot Kind for a recognized filename suffix
// and true, or Kind_Unknown and false for anything else (including
// directories, README files, and other "uninteresting" remote entries).
func KindForSuffix(lowerName string) (Kind, bool) {
	for suffix, kind := range interestingExtensions {
		if len(lowerName) >= len(suffix) && lowerName[len(lowerName)-len(suffix):] == suffix {
			return kind, true
		}
	}
	return Kind_Unknown, false
}
