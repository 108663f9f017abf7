// Copyright (c) 2024 Neomantra Corp

package nsefeed_test

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"testing"

	nsefeed "github.com/nse-cmfeed/nse-cmfeed"
)

// buildMarketRecord assembles one raw 96-byte MarketSnapshot record with
// distinct field values so decode order bugs show up as test failures.
func buildMarketRecord(token uint32, timestamp uint32) []byte {
	buf := make([]byte, nsefeed.MarketSnapshotMsg_Size)
	le := binary.LittleEndian
	le.PutUint16(buf[0:2], 1)
	le.PutUint32(buf[2:6], timestamp)
	le.PutUint16(buf[6:8], nsefeed.MarketSnapshotMsg_Size)
	p := buf[8:]
	le.PutUint32(p[0:4], token)
	le.PutUint32(p[4:8], 10050)
	le.PutUint64(p[8:16], 500)
	le.PutUint32(p[16:20], 10040)
	le.PutUint64(p[20:28], 700)
	le.PutUint32(p[28:32], 10060)
	le.PutUint64(p[32:40], 123456)
	le.PutUint32(p[40:44], 10045)
	le.PutUint32(p[44:48], 10000)
	le.PutUint32(p[48:52], 10100)
	le.PutUint32(p[52:56], 9950)
	le.PutUint32(p[56:60], 10050)
	le.PutUint32(p[60:64], 10010)
	le.PutUint32(p[64:68], 10080)
	le.PutUint32(p[68:72], 9980)
	le.PutUint32(p[72:76], 10040)
	le.PutUint64(p[76:84], 4321)
	le.PutUint32(p[84:88], 10055)
	return buf
}

func gzipBytes(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeMarket(t *testing.T) {
	raw := append(buildMarketRecord(1001, 1720000000), buildMarketRecord(1002, 1720000005)...)
	records, err := nsefeed.DecodeMarket(gzipBytes(t, raw), nil)
	if err != nil {
		t.Fatalf("DecodeMarket: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].SecurityToken != 1001 || records[1].SecurityToken != 1002 {
		t.Fatalf("record order/token mismatch: %+v", records)
	}
	if records[0].BestBuyQuantity != 500 || records[0].TotalTradedQuantity != 123456 {
		t.Fatalf("field decode mismatch: %+v", records[0])
	}
	if records[0].IndicativeClosePrice != 10055 {
		t.Fatalf("IndicativeClosePrice = %d, want 10055", records[0].IndicativeClosePrice)
	}
}

func TestDecodeMarketEmpty(t *testing.T) {
	records, err := nsefeed.DecodeMarket(gzipBytes(t, nil), nil)
	if err != nil {
		t.Fatalf("DecodeMarket(empty): %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("len(records) = %d, want 0", len(records))
	}
}

func TestDecodeMarketTruncatedRecord(t *testing.T) {
	raw := append(buildMarketRecord(2001, 1720000000), []byte{1, 2, 3}...)
	records, err := nsefeed.DecodeMarket(gzipBytes(t, raw), nil)
	if err != nil {
		t.Fatalf("DecodeMarket(truncated): %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1 (trailing partial record dropped)", len(records))
	}
}

func TestMarketSnapshotFillRawWrongSize(t *testing.T) {
	var m nsefeed.MarketSnapshot
	if err := m.Fill_Raw(make([]byte, 10)); err == nil {
		t.Fatal("expected error for undersized buffer")
	}
}
