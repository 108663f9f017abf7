// Copyright (c) 2024 Neomantra Corp

package nsefeed

import (
	"encoding/binary"
	"log/slog"
)

// MarketSnapshot is one Capital Market segment equity snapshot: an 8-byte
// RHeader followed by the 88-byte payload described below. All fields are
// little-endian; monetary fields are raw hundredths-of-a-rupee integers
// (see PaiseToRupees).
type MarketSnapshot struct {
	Header RHeader `json:"header"`

	SecurityToken       uint32 `json:"security_token"`
	LastTradedPrice     uint32 `json:"last_traded_price"`
	BestBuyQuantity     uint64 `json:"best_buy_quantity"`
	BestBuyPrice        uint32 `json:"best_buy_price"`
	BestSellQuantity    uint64 `json:"best_sell_quantity"`
	BestSellPrice       uint32 `json:"best_sell_price"`
	TotalTradedQuantity uint64 `json:"total_traded_quantity"`
	AverageTradedPrice  uint32 `json:"average_traded_price"`

	OpenPrice  uint32 `json:"open_price"`
	HighPrice  uint32 `json:"high_price"`
	LowPrice   uint32 `json:"low_price"`
	ClosePrice uint32 `json:"close_price"`

	IntervalOpenPrice           uint32 `json:"interval_open_price"`
	IntervalHighPrice           uint32 `json:"interval_high_price"`
	IntervalLowPrice            uint32 `json:"interval_low_price"`
	IntervalClosePrice          uint32 `json:"interval_close_price"`
	IntervalTotalTradedQuantity uint64 `json:"interval_total_traded_quantity"`

	IndicativeClosePrice uint32 `json:"indicative_close_price"`
}

// Fill_Raw decodes a MarketSnapshot from exactly MarketSnapshotMsg_Size
// bytes, including its RHeader.
func (m *MarketSnapshot) Fill_Raw(b []byte) error {
	if len(b) != MarketSnapshotMsg_Size {
		return unexpectedBytesError("MarketSnapshot.Fill_Raw", len(b), MarketSnapshotMsg_Size)
	}
	if err := m.Header.Fill_Raw(b[0:RHeader_Size]); err != nil {
		return err
	}
	p := b[RHeader_Size:]
	le := binary.LittleEndian
	m.SecurityToken = le.Uint32(p[0:4])
	m.LastTradedPrice = le.Uint32(p[4:8])
	m.BestBuyQuantity = le.Uint64(p[8:16])
	m.BestBuyPrice = le.Uint32(p[16:20])
	m.BestSellQuantity = le.Uint64(p[20:28])
	m.BestSellPrice = le.Uint32(p[28:32])
	m.TotalTradedQuantity = le.Uint64(p[32:40])
	m.AverageTradedPrice = le.Uint32(p[40:44])
	m.OpenPrice = le.Uint32(p[44:48])
	m.HighPrice = le.Uint32(p[48:52])
	m.LowPrice = le.Uint32(p[52:56])
	m.ClosePrice = le.Uint32(p[56:60])
	m.IntervalOpenPrice = le.Uint32(p[60:64])
	m.IntervalHighPrice = le.Uint32(p[64:68])
	m.IntervalLowPrice = le.Uint32(p[68:72])
	m.IntervalClosePrice = le.Uint32(p[72:76])
	m.IntervalTotalTradedQuantity = le.Uint64(p[76:84])
	m.IndicativeClosePrice = le.Uint32(p[84:88])
	return nil
}

// DecodeMarket decodes a gzip-compressed MarketSnapshot stream. Trailing
// bytes that don't make up a full MarketSnapshotMsg_Size record are logged
// and dropped rather than treated as fatal, per the watcher's tolerance for
// partially-written remote files.
func DecodeMarket(gz []byte, logger *slog.Logger) ([]MarketSnapshot, error) {
	raw, err := gunzip(gz)
	if err != nil {
		return nil, NewError(ErrorKindDecode, "DecodeMarket", err)
	}
	n := len(raw) / MarketSnapshotMsg_Size
	if rem := len(raw) % MarketSnapshotMsg_Size; rem != 0 {
		logTruncated(logger, "DecodeMarket", len(raw), MarketSnapshotMsg_Size, rem)
	}
	out := make([]MarketSnapshot, 0, n)
	for i := 0; i < n; i++ {
		var m MarketSnapshot
		start := i * MarketSnapshotMsg_Size
		if err := m.Fill_Raw(raw[start : start+MarketSnapshotMsg_Size]); err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}
