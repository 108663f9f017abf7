// Copyright (c) 2024 Neomantra Corp
//
// Package watcher implements the polling snapshot ingestion cycle:
// discover today's (or, failing that, yesterday's) remote directory,
// fetch every file with a recognized snapshot extension not already in
// the ledger, decode it, persist it, publish it, then mark it processed.

package nsefeed_watcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	nsefeed "github.com/nse-cmfeed/nse-cmfeed"
	bus "github.com/nse-cmfeed/nse-cmfeed/bus"
	ledger "github.com/nse-cmfeed/nse-cmfeed/ledger"
	store "github.com/nse-cmfeed/nse-cmfeed/store"
	transport "github.com/nse-cmfeed/nse-cmfeed/transport"
)

// Config wires a Watcher's collaborators and tuning knobs.
type Config struct {
	Transport    transport.Client
	Store        *store.Store
	Ledger       *ledger.Ledger
	Bus          *bus.Bus
	Clock        nsefeed.Clock
	Logger       *slog.Logger
	RemoteRoot   string        // e.g. "/NSE/CM"
	PollInterval time.Duration // default pollIntervalDefault
}

const pollIntervalDefault = 60 * time.Second

// Watcher runs the polling ingestion cycle described in the package doc.
// seenCache is a hot, in-process copy of the ledger's contents: a path is
// added once it's known processed (either marked by this process or found
// already marked in the ledger), so steady-state cycles don't issue one
// ledger query per already-ingested file in the listing. The ledger stays
// the durable source of truth; the cache just shortcuts it.
type Watcher struct {
	cfg       Config
	seenCache map[string]struct{}
}

// New validates cfg and returns a ready-to-run Watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Transport == nil || cfg.Store == nil || cfg.Ledger == nil || cfg.Bus == nil {
		return nil, nsefeed.NewError(nsefeed.ErrorKindConfig, "watcher.New", fmt.Errorf("transport, store, ledger, and bus are all required"))
	}
	if cfg.Clock == nil {
		cfg.Clock = nsefeed.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = pollIntervalDefault
	}
	if cfg.RemoteRoot == "" {
		return nil, nsefeed.NewError(nsefeed.ErrorKindConfig, "watcher.New", fmt.Errorf("RemoteRoot is required"))
	}
	return &Watcher{cfg: cfg, seenCache: make(map[string]struct{})}, nil
}

// Run blocks, polling every PollInterval until ctx is canceled. Each
// cycle's errors are logged, never fatal: a bad poll just waits for the
// next tick.
func (w *Watcher) Run(ctx context.Context) error {
	w.cfg.Logger.Info("watcher started", "poll_interval", w.cfg.PollInterval, "remote_root", w.cfg.RemoteRoot)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			w.cfg.Logger.Info("watcher stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// runCycle is one pass of the state machine: list, then for every
// unprocessed interesting file, fetch -> decode -> persist -> broadcast
// -> mark, in that order. A file is marked only after it's fully
// persisted and broadcast, so a crash mid-cycle simply retries that file
// next cycle rather than silently losing it.
func (w *Watcher) runCycle(ctx context.Context) {
	now := w.cfg.Clock.Now()
	today := nsefeed.MonthDDYYYY(now)
	todayPath := w.cfg.RemoteRoot + "/DATA/" + today

	files, err := w.cfg.Transport.List(ctx, todayPath)
	if err != nil {
		w.cfg.Logger.Warn("could not list today's directory, falling back to yesterday", "path", todayPath, "error", err)
		yesterday := nsefeed.MonthDDYYYY(now.AddDate(0, 0, -1))
		yesterdayPath := w.cfg.RemoteRoot + "/DATA/" + yesterday
		files, err = w.cfg.Transport.List(ctx, yesterdayPath)
		if err != nil {
			w.cfg.Logger.Error("could not list yesterday's directory either, skipping this cycle", "path", yesterdayPath, "error", err)
			return
		}
	}
	w.cfg.Logger.Info("listed remote files", "count", len(files))

	processedCount := 0
	for _, remotePath := range files {
		if w.processOne(ctx, remotePath) {
			processedCount++
		}
	}
	w.cfg.Logger.Info("cycle complete", "processed", processedCount, "seen", len(files))
}

// processOne handles one remote path end to end, returning true if it
// resulted in a newly-persisted-and-marked file.
func (w *Watcher) processOne(ctx context.Context, remotePath string) bool {
	logger := w.cfg.Logger.With("remote_path", remotePath)

	if _, hot := w.seenCache[remotePath]; hot {
		return false
	}
	seen, err := w.cfg.Ledger.Seen(ctx, remotePath)
	if err != nil {
		logger.Error("ledger lookup failed", "error", err)
		return false
	}
	if seen {
		w.seenCache[remotePath] = struct{}{}
		return false
	}

	kind, ok := nsefeed.KindForSuffix(strings.ToLower(remotePath))
	if !ok {
		// Uninteresting extension: mark and skip, rather than silently
		// re-listing it forever.
		if err := w.cfg.Ledger.Mark(ctx, remotePath, w.cfg.Clock.Now().Unix()); err != nil {
			logger.Error("failed to mark uninteresting file", "error", err)
			return false
		}
		w.seenCache[remotePath] = struct{}{}
		return false
	}

	start := time.Now()
	data, err := w.cfg.Transport.Fetch(ctx, remotePath)
	if err != nil {
		logger.Warn("fetch failed, will retry next cycle", "error", err)
		return false
	}
	logger.Info("fetched file", "bytes", humanize.Bytes(uint64(len(data))), "kind", kind)

	batch, err := w.decode(kind, remotePath, data)
	if err != nil {
		logger.Error("decode failed, will retry next cycle", "error", err)
		return false
	}
	batch.FetchedAt = w.cfg.Clock.Now()

	if batch.Len() == 0 {
		// Format-valid but data-empty: nothing to persist or publish, just
		// remember the file so it isn't re-fetched every cycle.
		if err := w.cfg.Ledger.Mark(ctx, remotePath, w.cfg.Clock.Now().Unix()); err != nil {
			logger.Error("failed to mark empty file", "error", err)
			return false
		}
		w.seenCache[remotePath] = struct{}{}
		logger.Info("empty snapshot file, marked without persisting", "kind", kind)
		return false
	}

	if err := nsefeed.Walk(batch, &traceVisitor{logger: logger}); err != nil {
		logger.Error("trace walk failed", "error", err)
	}

	if err := w.persist(ctx, batch); err != nil {
		logger.Error("persist failed, will retry next cycle", "error", err)
		return false
	}

	w.cfg.Bus.Publish(*batch)

	if err := w.cfg.Ledger.Mark(ctx, remotePath, w.cfg.Clock.Now().Unix()); err != nil {
		logger.Error("failed to mark processed file, may be reprocessed", "error", err)
		return false
	}
	w.seenCache[remotePath] = struct{}{}

	logger.Info("processed file", "kind", kind, "record_count", humanize.Comma(int64(batch.Len())), "elapsed_ms", time.Since(start).Milliseconds())
	return true
}

func (w *Watcher) decode(kind nsefeed.Kind, remotePath string, data []byte) (*nsefeed.Batch, error) {
	batch := &nsefeed.Batch{Kind: kind, SourceFile: remotePath}
	switch kind {
	case nsefeed.Kind_Market:
		records, err := nsefeed.DecodeMarket(data, w.cfg.Logger)
		if err != nil {
			return nil, err
		}
		batch.MarketSnapshots = records
	case nsefeed.Kind_Index:
		records, err := nsefeed.DecodeIndex(data, w.cfg.Logger)
		if err != nil {
			return nil, err
		}
		batch.IndexSnapshots = records
	case nsefeed.Kind_CallAuction:
		records, err := nsefeed.DecodeCallAuction(data, w.cfg.Logger)
		if err != nil {
			return nil, err
		}
		batch.CallAuctionSnapshots = records
	default:
		return nil, nsefeed.NewError(nsefeed.ErrorKindDecode, "Watcher.decode", nsefeed.ErrUnknownExtension)
	}
	return batch, nil
}

// traceVisitor walks a just-decoded Batch and emits one Debug log line per
// record before it's handed to the Store, giving an operator a per-record
// trace independent of the batch-level Info logging around it. It embeds
// NullVisitor since only the record kinds the watcher actually decodes
// (market/index/call-auction) need a non-default callback here.
type traceVisitor struct {
	nsefeed.NullVisitor
	logger *slog.Logger
}

func (v *traceVisitor) OnMarketSnapshot(r *nsefeed.MarketSnapshot) error {
	v.logger.Debug("market snapshot", "security_token", r.SecurityToken, "ltp", r.LastTradedPrice)
	return nil
}

func (v *traceVisitor) OnIndexSnapshot(r *nsefeed.IndexSnapshot) error {
	v.logger.Debug("index snapshot", "index_token", r.IndexToken, "current_index_value", r.CurrentIndexValue)
	return nil
}

func (v *traceVisitor) OnCallAuctionSnapshot(r *nsefeed.CallAuctionSnapshot) error {
	v.logger.Debug("call auction snapshot", "security_token", r.SecurityToken, "ltp", r.LastTradedPrice)
	return nil
}

func (w *Watcher) persist(ctx context.Context, batch *nsefeed.Batch) error {
	switch batch.Kind {
	case nsefeed.Kind_Market:
		return w.cfg.Store.InsertMarketBatch(ctx, batch.MarketSnapshots)
	case nsefeed.Kind_Index:
		return w.cfg.Store.InsertIndexBatch(ctx, batch.IndexSnapshots)
	case nsefeed.Kind_CallAuction:
		return w.cfg.Store.InsertCallAuctionBatch(ctx, batch.CallAuctionSnapshots)
	default:
		return nsefeed.NewError(nsefeed.ErrorKindPersistence, "Watcher.persist", fmt.Errorf("unhandled kind %s", batch.Kind))
	}
}
