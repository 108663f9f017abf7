// Copyright (c) 2024 Neomantra Corp
//
// Securities.dat carries NSE's security master: one variable-length record
// per listed security, each record itself prefixed by the same 8-byte
// RHeader used by the snapshot streams. Unlike the snapshot streams,
// Securities.dat is not a fixed-size format across exchange software
// versions, so this decoder walks the stream using each record's own
// declared message_length rather than a hardcoded record size.

package nsefeed

import (
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"strings"
)

// SecurityMaster is one decoded Securities.dat record.
type SecurityMaster struct {
	TokenNumber      uint32           `json:"token_number"`
	Symbol           string           `json:"symbol"`
	Series           string           `json:"series"`
	IssuedCapital    float64          `json:"issued_capital"`
	SettlementCycle  SettlementCycle  `json:"settlement_cycle"`
	CompanyName      string           `json:"company_name"`
	PermittedToTrade PermittedToTrade `json:"permitted_to_trade"`
	PayloadLength    int              `json:"payload_length"`
}

// companyNameWindowStart/End bound the scan range for the free-floating
// company name field, and companyNameCandidateLen is the width of each
// candidate slice tried within that window. The field's exact offset
// drifts across NSE software versions, so the longest printable run in
// this range is taken as the name.
const (
	companyNameWindowStart  = 40
	companyNameWindowEnd    = 80
	companyNameCandidateLen = 25
)

// fillSecurityMaster decodes a SecurityMaster from payload, the bytes of a
// Securities.dat record following its RHeader. Every sub-field beyond
// TokenNumber/Symbol/Series is read defensively: shorter payloads (older
// NSE software versions) simply leave the later fields zero-valued.
func fillSecurityMaster(payload []byte) SecurityMaster {
	le := binary.LittleEndian
	sm := SecurityMaster{PayloadLength: len(payload)}

	if len(payload) >= 4 {
		sm.TokenNumber = le.Uint32(payload[0:4])
	}
	if len(payload) >= 14 {
		sm.Symbol = TrimNullBytes(payload[4:14])
	}
	if len(payload) >= 16 {
		sm.Series = TrimNullBytes(payload[14:16])
	}
	if len(payload) >= 24 {
		sm.IssuedCapital = math.Float64frombits(le.Uint64(payload[16:24]))
	}
	if len(payload) >= 26 {
		sm.SettlementCycle = SettlementCycle(le.Uint16(payload[24:26]))
	}
	sm.CompanyName = extractCompanyName(payload)
	if n := len(payload); n >= 2 {
		sm.PermittedToTrade = PermittedToTrade(le.Uint16(payload[n-2 : n]))
	} else {
		sm.PermittedToTrade = PermittedToTrade_Permitted
	}
	return sm
}

// extractCompanyName scans the window [companyNameWindowStart,
// companyNameWindowEnd) for the longest printable candidate slice, since
// the company-name field's exact position is not fixed across versions.
func extractCompanyName(payload []byte) string {
	end := companyNameWindowEnd
	if max := len(payload) - companyNameCandidateLen; max < end {
		end = max
	}
	best := ""
	for start := companyNameWindowStart; start < end; start++ {
		candidate := TrimNullBytes(payload[start : start+companyNameCandidateLen])
		if len(candidate) > len(best) && isPrintableASCII(candidate) {
			best = candidate
		}
	}
	return best
}

func isPrintableASCII(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}

// IsTestSymbol reports whether a decoded symbol is an exchange test
// instrument (e.g. "NSETESTCM"), which the daily securities-master job
// excludes from persistence.
func IsTestSymbol(symbol string) bool {
	return strings.HasPrefix(symbol, "NSETEST")
}

// DecodeSecurityMaster walks a plain (not gzip-compressed) Securities.dat stream,
// decoding every record whose header carries SecurityMaster_Transcode and
// skipping all others by their declared message_length. Decoded records
// whose symbol IsTestSymbol reports as a test instrument are dropped from
// the result. A record whose
// message_length claims more bytes than remain in the stream ends the
// walk cleanly rather than erroring, since it marks a file the exchange
// was still writing when it was fetched.
func DecodeSecurityMaster(raw []byte, logger *slog.Logger) ([]SecurityMaster, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var out []SecurityMaster
	pos := 0
	for pos+RHeader_Size <= len(raw) {
		var hdr RHeader
		if err := hdr.Fill_Raw(raw[pos : pos+RHeader_Size]); err != nil {
			return out, err
		}
		if int(hdr.MessageLength) < RHeader_Size {
			return out, NewError(ErrorKindDecode, "DecodeSecurityMaster", ErrMessageTooShort)
		}
		payloadLen := int(hdr.MessageLength) - RHeader_Size
		recordEnd := pos + RHeader_Size + payloadLen
		if recordEnd > len(raw) {
			logger.Warn("Securities.dat record overruns buffer, stopping",
				"op", "DecodeSecurityMaster", "pos", pos, "message_length", hdr.MessageLength, "remaining", len(raw)-pos)
			break
		}
		payload := raw[pos+RHeader_Size : recordEnd]
		if hdr.Transcode == SecurityMaster_Transcode {
			sm := fillSecurityMaster(payload)
			if !IsTestSymbol(sm.Symbol) {
				out = append(out, sm)
			}
		}
		pos = recordEnd
	}
	return out, nil
}

// DecodeSecurityMasterReader is a streaming convenience over
// DecodeSecurityMaster for callers that already have an io.Reader rather
// than a buffer.
func DecodeSecurityMasterReader(r io.Reader, logger *slog.Logger) ([]SecurityMaster, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, NewError(ErrorKindTransient, "DecodeSecurityMasterReader", err)
	}
	return DecodeSecurityMaster(raw, logger)
}
