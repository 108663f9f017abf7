// Copyright (c) 2024 Neomantra Corp

package nsefeed

import (
	"bytes"
	"time"
)

// MonetaryScale is the denominator for NSE's hundredths-of-a-rupee
// fixed-point monetary fields. Division only happens at presentation.
const MonetaryScale = 100

// PaiseToRupees converts a raw hundredths-of-a-rupee integer to a float64
// rupee amount, for presentation only; persisted values stay raw integers.
func PaiseToRupees(paise uint32) float64 {
	return float64(paise) / MonetaryScale
}

// TrimNullBytes removes trailing NULs from a byte slice and returns a string.
func TrimNullBytes(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}

// TimestampToTime converts an NSE record's u32 epoch-seconds wall-clock
// timestamp to a time.Time in UTC.
func TimestampToTime(epochSeconds uint32) time.Time {
	return time.Unix(int64(epochSeconds), 0).UTC()
}

// MonthDDYYYY formats t using the exchange's directory date-token grammar,
// e.g. "July082025" for 2025-07-08.
func MonthDDYYYY(t time.Time) string {
	return t.Format("January02") + t.Format("2006")
}

// DDMMYYYY formats t using the exchange's filename date-token grammar,
// e.g. "08072025" for 2025-07-08.
func DDMMYYYY(t time.Time) string {
	return t.Format("02012006")
}

// HolidayPredicate reports whether t is an exchange holiday. The default
// (PreviousBusinessDay with a nil predicate) only rolls back over Saturday
// and Sunday: per the Design Notes, holidays are explicitly not tracked by
// this core, and that gap is surfaced here as an injectable predicate
// rather than silently assumed away.
type HolidayPredicate func(t time.Time) bool

// PreviousBusinessDay returns the most recent business day strictly before
// ref, rolling back over Saturday/Sunday and any day for which holiday
// returns true. A nil holiday predicate only rolls back weekends.
func PreviousBusinessDay(ref time.Time, holiday HolidayPredicate) time.Time {
	prev := ref.AddDate(0, 0, -1)
	for prev.Weekday() == time.Saturday || prev.Weekday() == time.Sunday || (holiday != nil && holiday(prev)) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}
