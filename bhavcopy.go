// Copyright (c) 2024 Neomantra Corp
//
// Bhavcopy is NSE's end-of-day line-oriented text summary, one row per
// traded security for the previous business day. Unlike the snapshot
// formats this is not binary, and a malformed row is simply skipped
// rather than aborting the whole file.

package nsefeed

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// BhavcopyRow is one decoded line of a CMBhavcopy_DDMMYYYY.txt file. A
// numeric column that fails to parse is left at its zero value and its
// original token is kept in RawFields, keyed by column name, so a bad
// value never costs the whole row.
type BhavcopyRow struct {
	Symbol              string  `json:"symbol"`
	Series              string  `json:"series"`
	TradeHighPrice      float64 `json:"trade_high_price"`
	TradeLowPrice       float64 `json:"trade_low_price"`
	OpeningPrice        float64 `json:"opening_price"`
	ClosingPrice        float64 `json:"closing_price"`
	PreviousClosePrice  float64 `json:"previous_close_price"`
	TotalTradedQuantity int64   `json:"total_traded_quantity"`
	TotalTradedValue    float64 `json:"total_traded_value"`

	RawFields map[string]string `json:"raw_fields,omitempty"`
}

// bhavcopyColumns are the 7 value columns following symbol (and optional
// series) in each bhavcopy line, in wire order.
var bhavcopyColumns = [7]string{
	"trade_high_price",
	"trade_low_price",
	"opening_price",
	"closing_price",
	"previous_close_price",
	"total_traded_quantity",
	"total_traded_value",
}

// Bhavcopy is the decoded result of one CMBhavcopy_DDMMYYYY.txt file.
type Bhavcopy struct {
	BusinessDate time.Time
	Rows         []BhavcopyRow
}

var bhavcopyFilenamePattern = regexp.MustCompile(`^CMBhavcopy_(\d{2})(\d{2})(\d{4})\.txt$`)

// BhavcopyBusinessDate extracts the business date encoded in a
// CMBhavcopy_DDMMYYYY.txt filename.
func BhavcopyBusinessDate(filename string) (time.Time, error) {
	m := bhavcopyFilenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return time.Time{}, NewError(ErrorKindDecode, "BhavcopyBusinessDate", ErrMalformedFilename)
	}
	dd, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	yyyy, _ := strconv.Atoi(m[3])
	return time.Date(yyyy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC), nil
}

// BhavcopyFilename builds the CMBhavcopy_DDMMYYYY.txt filename for a
// business date.
func BhavcopyFilename(businessDate time.Time) string {
	return "CMBhavcopy_" + DDMMYYYY(businessDate) + ".txt"
}

// DecodeBhavcopy parses the text body of a bhavcopy file. Each line must
// split into 8 whitespace-separated tokens (symbol + 7 value columns, no
// series) or 9 (symbol, series, + 7 value columns); any other token count
// is a malformed row and is dropped rather than failing the whole file.
func DecodeBhavcopy(text, filename string) (*Bhavcopy, error) {
	businessDate, err := BhavcopyBusinessDate(filename)
	if err != nil {
		return nil, err
	}
	bc := &Bhavcopy{BusinessDate: businessDate}
	for _, line := range strings.Split(text, "\n") {
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		var symbol, series string
		var vals []string
		switch len(parts) {
		case 8:
			symbol, vals = parts[0], parts[1:]
		case 9:
			symbol, series, vals = parts[0], parts[1], parts[2:]
		default:
			continue
		}
		row := BhavcopyRow{Symbol: symbol, Series: series}
		row.TradeHighPrice = row.parseFloatColumn(bhavcopyColumns[0], vals[0])
		row.TradeLowPrice = row.parseFloatColumn(bhavcopyColumns[1], vals[1])
		row.OpeningPrice = row.parseFloatColumn(bhavcopyColumns[2], vals[2])
		row.ClosingPrice = row.parseFloatColumn(bhavcopyColumns[3], vals[3])
		row.PreviousClosePrice = row.parseFloatColumn(bhavcopyColumns[4], vals[4])
		row.TotalTradedQuantity = row.parseIntColumn(bhavcopyColumns[5], vals[5])
		row.TotalTradedValue = row.parseFloatColumn(bhavcopyColumns[6], vals[6])
		bc.Rows = append(bc.Rows, row)
	}
	return bc, nil
}

func (row *BhavcopyRow) parseFloatColumn(name, s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		row.keepRaw(name, s)
		return 0
	}
	return v
}

func (row *BhavcopyRow) parseIntColumn(name, s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		row.keepRaw(name, s)
		return 0
	}
	return v
}

func (row *BhavcopyRow) keepRaw(name, s string) {
	if row.RawFields == nil {
		row.RawFields = make(map[string]string)
	}
	row.RawFields[name] = s
}
