// Copyright (c) 2024 Neomantra Corp

package nsefeed

// Visitor is implemented by anything that wants to consume decoded
// records as the watcher ingests them, independent of how they arrive
// (SFTP poll cycle, or a daily bhavcopy/securities-master job). The bus
// package delivers a Batch to each subscriber's channel rather than
// calling a Visitor directly, but Visitor remains the dispatch shape
// batch consumers are expected to implement.
type Visitor interface {
	OnMarketSnapshot(record *MarketSnapshot) error
	OnIndexSnapshot(record *IndexSnapshot) error
	OnCallAuctionSnapshot(record *CallAuctionSnapshot) error
	OnSecurityMaster(record *SecurityMaster) error
	OnBhavcopyRow(record *BhavcopyRow) error

	OnBatchEnd(batch *Batch) error
}

// NullVisitor is a no-op Visitor, handy to embed when only a few of the
// callbacks matter.
type NullVisitor struct{}

func (v *NullVisitor) OnMarketSnapshot(record *MarketSnapshot) error { return nil }
func (v *NullVisitor) OnIndexSnapshot(record *IndexSnapshot) error   { return nil }
func (v *NullVisitor) OnCallAuctionSnapshot(record *CallAuctionSnapshot) error {
	return nil
}
func (v *NullVisitor) OnSecurityMaster(record *SecurityMaster) error { return nil }
func (v *NullVisitor) OnBhavcopyRow(record *BhavcopyRow) error       { return nil }
func (v *NullVisitor) OnBatchEnd(batch *Batch) error                 { return nil }

// Walk dispatches every record in batch to visitor, in order, stopping at
// the first error. OnBatchEnd is called last regardless of Kind, even for
// an empty batch, so a Visitor can flush per-file state.
func Walk(batch *Batch, visitor Visitor) error {
	switch batch.Kind {
	case Kind_Market:
		for i := range batch.MarketSnapshots {
			if err := visitor.OnMarketSnapshot(&batch.MarketSnapshots[i]); err != nil {
				return err
			}
		}
	case Kind_Index:
		for i := range batch.IndexSnapshots {
			if err := visitor.OnIndexSnapshot(&batch.IndexSnapshots[i]); err != nil {
				return err
			}
		}
	case Kind_CallAuction:
		for i := range batch.CallAuctionSnapshots {
			if err := visitor.OnCallAuctionSnapshot(&batch.CallAuctionSnapshots[i]); err != nil {
				return err
			}
		}
	case Kind_Securities:
		for i := range batch.SecurityMasters {
			if err := visitor.OnSecurityMaster(&batch.SecurityMasters[i]); err != nil {
				return err
			}
		}
	case Kind_Bhavcopy:
		for i := range batch.BhavcopyRows {
			if err := visitor.OnBhavcopyRow(&batch.BhavcopyRows[i]); err != nil {
				return err
			}
		}
	}
	return visitor.OnBatchEnd(batch)
}
