// Copyright (c) 2024 Neomantra Corp

package nsefeed

import (
	"encoding/binary"
	"log/slog"
)

// CallAuctionSnapshot is one Call Auction (pre-open/special session) market
// snapshot: an 8-byte RHeader followed by the 78-byte payload below. The
// payload's last 4 bytes are unused padding left by the exchange's own
// record packer and are intentionally not decoded into any field.
type CallAuctionSnapshot struct {
	Header RHeader `json:"header"`

	SecurityToken             uint32 `json:"security_token"`
	LastTradedPrice           uint32 `json:"last_traded_price"`
	BestBuyQuantity           uint64 `json:"best_buy_quantity"`
	BestBuyPrice              uint32 `json:"best_buy_price"`
	BuyBBMMFlag               byte   `json:"buy_bbmm_flag"`
	BestSellQuantity          uint64 `json:"best_sell_quantity"`
	BestSellPrice             uint32 `json:"best_sell_price"`
	SellBBMMFlag              byte   `json:"sell_bbmm_flag"`
	TotalTradedQuantity       uint64 `json:"total_traded_quantity"`
	IndicativeTradedQuantity  uint64 `json:"indicative_traded_quantity"`
	AverageTradedPrice        uint32 `json:"average_traded_price"`
	FirstOpenPrice            uint32 `json:"first_open_price"`
	OpenPrice                 uint32 `json:"open_price"`
	HighPrice                 uint32 `json:"high_price"`
	LowPrice                  uint32 `json:"low_price"`
	ClosePrice                uint32 `json:"close_price"`
}

// Fill_Raw decodes a CallAuctionSnapshot from exactly
// CallAuctionSnapshotMsg_Size bytes, including its RHeader.
func (c *CallAuctionSnapshot) Fill_Raw(b []byte) error {
	if len(b) != CallAuctionSnapshotMsg_Size {
		return unexpectedBytesError("CallAuctionSnapshot.Fill_Raw", len(b), CallAuctionSnapshotMsg_Size)
	}
	if err := c.Header.Fill_Raw(b[0:RHeader_Size]); err != nil {
		return err
	}
	p := b[RHeader_Size:]
	le := binary.LittleEndian
	c.SecurityToken = le.Uint32(p[0:4])
	c.LastTradedPrice = le.Uint32(p[4:8])
	c.BestBuyQuantity = le.Uint64(p[8:16])
	c.BestBuyPrice = le.Uint32(p[16:20])
	c.BuyBBMMFlag = p[20]
	c.BestSellQuantity = le.Uint64(p[21:29])
	c.BestSellPrice = le.Uint32(p[29:33])
	c.SellBBMMFlag = p[33]
	c.TotalTradedQuantity = le.Uint64(p[34:42])
	c.IndicativeTradedQuantity = le.Uint64(p[42:50])
	c.AverageTradedPrice = le.Uint32(p[50:54])
	c.FirstOpenPrice = le.Uint32(p[54:58])
	c.OpenPrice = le.Uint32(p[58:62])
	c.HighPrice = le.Uint32(p[62:66])
	c.LowPrice = le.Uint32(p[66:70])
	c.ClosePrice = le.Uint32(p[70:74])
	// p[74:78] is trailing padding, left undecoded.
	return nil
}

// DecodeCallAuction decodes a gzip-compressed CallAuctionSnapshot stream.
func DecodeCallAuction(gz []byte, logger *slog.Logger) ([]CallAuctionSnapshot, error) {
	raw, err := gunzip(gz)
	if err != nil {
		return nil, NewError(ErrorKindDecode, "DecodeCallAuction", err)
	}
	n := len(raw) / CallAuctionSnapshotMsg_Size
	if rem := len(raw) % CallAuctionSnapshotMsg_Size; rem != 0 {
		logTruncated(logger, "DecodeCallAuction", len(raw), CallAuctionSnapshotMsg_Size, rem)
	}
	out := make([]CallAuctionSnapshot, 0, n)
	for i := 0; i < n; i++ {
		var c CallAuctionSnapshot
		start := i * CallAuctionSnapshotMsg_Size
		if err := c.Fill_Raw(raw[start : start+CallAuctionSnapshotMsg_Size]); err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}
