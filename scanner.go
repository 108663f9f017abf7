// Copyright (c) 2024 Neomantra Corp
//
// Shared decompression and fixed-record scanning helpers used by the
// MarketSnapshot, IndexSnapshot, and CallAuctionSnapshot decoders.

package nsefeed

import (
	"bytes"
	"io"
	"log/slog"

	"github.com/klauspost/compress/gzip"
)

// gunzip fully decompresses a gzip-framed snapshot file. The exchange ships
// these as small, single-member gzip streams, so reading the whole thing
// into memory is simpler and fast enough.
func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// logTruncated warns that a decompressed snapshot file's length isn't a
// whole multiple of its fixed record size, which happens when the exchange
// finishes writing a file mid-record. The watcher does not treat this as
// fatal: the complete records already read are still persisted.
func logTruncated(logger *slog.Logger, op string, total, recordSize, remainder int) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("truncated snapshot stream",
		"op", op,
		"total_bytes", total,
		"record_size", recordSize,
		"trailing_bytes", remainder,
	)
}
