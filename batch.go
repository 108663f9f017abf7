// Copyright (c) 2024 Neomantra Corp

package nsefeed

import "time"

// Batch is the unit of work the watcher and daily jobs hand to the store
// and publish on the subscriber bus: every record decoded from a single
// remote file, plus the provenance needed to mark that file processed.
type Batch struct {
	Kind         Kind      `json:"kind"`
	SourceFile   string    `json:"source_file"`
	FetchedAt    time.Time `json:"fetched_at"`
	BusinessDate time.Time `json:"business_date,omitempty"`

	MarketSnapshots      []MarketSnapshot      `json:"market_snapshots,omitempty"`
	IndexSnapshots       []IndexSnapshot       `json:"index_snapshots,omitempty"`
	CallAuctionSnapshots []CallAuctionSnapshot `json:"call_auction_snapshots,omitempty"`
	SecurityMasters      []SecurityMaster      `json:"security_masters,omitempty"`
	BhavcopyRows         []BhavcopyRow         `json:"bhavcopy_rows,omitempty"`
}

// Len returns the number of records the Batch carries, regardless of Kind.
func (b *Batch) Len() int {
	switch b.Kind {
	case Kind_Market:
		return len(b.MarketSnapshots)
	case Kind_Index:
		return len(b.IndexSnapshots)
	case Kind_CallAuction:
		return len(b.CallAuctionSnapshots)
	case Kind_Securities:
		return len(b.SecurityMasters)
	case Kind_Bhavcopy:
		return len(b.BhavcopyRows)
	default:
		return 0
	}
}
