// Copyright (c) 2024 Neomantra Corp

package nsefeed_watcher_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	nsefeed "github.com/nse-cmfeed/nse-cmfeed"
	bus "github.com/nse-cmfeed/nse-cmfeed/bus"
	ledger "github.com/nse-cmfeed/nse-cmfeed/ledger"
	store "github.com/nse-cmfeed/nse-cmfeed/store"
	watcher "github.com/nse-cmfeed/nse-cmfeed/watcher"
)

// fakeTransport is an in-memory transport.Client test double: a fixed
// directory listing plus a map of path to raw (already gzipped) payload.
// listErrs and fetchErrs, keyed by directory and by path, make List or
// Fetch fail for that one entry, so tests can exercise the
// today-fails/yesterday-fallback path.
type fakeTransport struct {
	mu        sync.Mutex
	listing   map[string][]string
	files     map[string][]byte
	fetchErrs map[string]error
	listErrs  map[string]error
	fetches   []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		listing:   make(map[string][]string),
		files:     make(map[string][]byte),
		fetchErrs: make(map[string]error),
		listErrs:  make(map[string]error),
	}
}

func (f *fakeTransport) List(ctx context.Context, dir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.listErrs[dir]; ok {
		return nil, err
	}
	return f.listing[dir], nil
}

func (f *fakeTransport) Fetch(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, path)
	if err, ok := f.fetchErrs[path]; ok {
		return nil, err
	}
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("fakeTransport: no such file %q", path)
	}
	return data, nil
}

func (f *fakeTransport) Close() error { return nil }

func gzipBytes(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// oneMarketRecord builds a single well-formed MarketSnapshotMsg_Size record
// with a recognizable SecurityToken, for test fixtures.
func oneMarketRecord(t *testing.T, token uint32) []byte {
	t.Helper()
	buf := make([]byte, nsefeed.MarketSnapshotMsg_Size)
	le := binary.LittleEndian
	le.PutUint16(buf[0:2], 7)            // Transcode
	le.PutUint32(buf[2:6], 1720396800)   // Timestamp
	le.PutUint16(buf[6:8], uint16(len(buf)-nsefeed.RHeader_Size))
	le.PutUint32(buf[nsefeed.RHeader_Size:nsefeed.RHeader_Size+4], token)
	return buf
}

type testHarness struct {
	transport *fakeTransport
	store     *store.Store
	ledger    *ledger.Ledger
	bus       *bus.Bus
	db        *sql.DB
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	st, err := store.NewStore(":memory:", nil)
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	l, err := ledger.New(st.DB())
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	return &testHarness{
		transport: newFakeTransport(),
		store:     st,
		ledger:    l,
		bus:       bus.New(8, nil),
	}
}

func (h *testHarness) newWatcher(t *testing.T, clock nsefeed.Clock) *watcher.Watcher {
	t.Helper()
	w, err := watcher.New(watcher.Config{
		Transport:    h.transport,
		Store:        h.store,
		Ledger:       h.ledger,
		Bus:          h.bus,
		Clock:        clock,
		RemoteRoot:   "/NSE/CM",
		PollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("watcher.New: %v", err)
	}
	return w
}

// TestHappyPathPersistsPublishesAndMarks covers S1: a fresh .mkt.gz file is
// fetched, decoded, persisted, published on the bus, and marked processed
// exactly once, all within a single cycle.
func TestHappyPathPersistsPublishesAndMarks(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2025, time.July, 8, 9, 0, 0, 0, time.UTC)
	clock := nsefeed.FixedClock{At: now}
	todayDir := "/NSE/CM/DATA/" + nsefeed.MonthDDYYYY(now)
	const path = "/NSE/CM/DATA/July082025/RELIANCE_090000.mkt.gz"
	h.transport.listing[todayDir] = []string{path}
	h.transport.files[path] = gzipBytes(t, oneMarketRecord(t, 2885))

	_, sub := h.bus.Subscribe()

	w := h.newWatcher(t, clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	select {
	case batch := <-sub:
		if batch.Kind != nsefeed.Kind_Market {
			t.Fatalf("batch.Kind = %v, want Kind_Market", batch.Kind)
		}
		if len(batch.MarketSnapshots) != 1 || batch.MarketSnapshots[0].SecurityToken != 2885 {
			t.Fatalf("unexpected snapshots: %+v", batch.MarketSnapshots)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published batch")
	}
	cancel()
	<-done

	seen, err := h.ledger.Seen(context.Background(), path)
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if !seen {
		t.Fatal("processed file not marked in ledger")
	}

	var count int
	if err := h.store.DB().QueryRow(`SELECT COUNT(*) FROM market_snapshots WHERE security_token = 2885`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("persisted row count = %d, want 1", count)
	}
}

// TestAlreadyProcessedFileIsSkipped covers S2: a path already marked in the
// ledger before the watcher ever runs is never fetched.
func TestAlreadyProcessedFileIsSkipped(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2025, time.July, 8, 9, 0, 0, 0, time.UTC)
	clock := nsefeed.FixedClock{At: now}
	todayDir := "/NSE/CM/DATA/" + nsefeed.MonthDDYYYY(now)
	const path = "/NSE/CM/DATA/July082025/RELIANCE_090000.mkt.gz"
	h.transport.listing[todayDir] = []string{path}
	h.transport.files[path] = gzipBytes(t, oneMarketRecord(t, 2885))

	if err := h.ledger.Mark(context.Background(), path, now.Unix()); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	w := h.newWatcher(t, clock)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	if len(h.transport.fetches) != 0 {
		t.Fatalf("fetches = %v, want none (already processed)", h.transport.fetches)
	}
}

// TestPersistenceFailureIsNotMarkedAndRetried covers S3: if persistence
// fails, the file is left unmarked so a later cycle retries it rather than
// silently dropping it.
func TestPersistenceFailureIsNotMarkedAndRetried(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2025, time.July, 8, 9, 0, 0, 0, time.UTC)
	clock := nsefeed.FixedClock{At: now}
	todayDir := "/NSE/CM/DATA/" + nsefeed.MonthDDYYYY(now)
	const path = "/NSE/CM/DATA/July082025/RELIANCE_090000.mkt.gz"
	h.transport.listing[todayDir] = []string{path}
	h.transport.files[path] = gzipBytes(t, oneMarketRecord(t, 2885))

	// Force persistence to fail by closing the store's underlying DB out
	// from under it before the watcher ever runs.
	if err := h.store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w := h.newWatcher(t, clock)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	seen, err := h.ledger.Seen(context.Background(), path)
	// Ledger shares the (now-closed) DB, so Seen itself may also error;
	// either way the path must not be reported as successfully marked.
	if err == nil && seen {
		t.Fatal("file should not be marked processed when persistence fails")
	}
}

func TestUnrecognizedExtensionIsMarkedAndSkipped(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2025, time.July, 8, 9, 0, 0, 0, time.UTC)
	clock := nsefeed.FixedClock{At: now}
	todayDir := "/NSE/CM/DATA/" + nsefeed.MonthDDYYYY(now)
	const path = "/NSE/CM/DATA/July082025/readme.txt"
	h.transport.listing[todayDir] = []string{path}

	w := h.newWatcher(t, clock)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	if len(h.transport.fetches) != 0 {
		t.Fatalf("fetches = %v, want none (uninteresting extension)", h.transport.fetches)
	}
	seen, err := h.ledger.Seen(context.Background(), path)
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if !seen {
		t.Fatal("uninteresting file should still be marked, to avoid relisting it forever")
	}
}

// TestEmptySnapshotFileIsMarkedWithoutPersisting covers the
// format-valid-but-data-empty case: a gzip file whose decompressed body is
// zero records is marked processed, but nothing is persisted or published.
func TestEmptySnapshotFileIsMarkedWithoutPersisting(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2025, time.July, 8, 9, 0, 0, 0, time.UTC)
	clock := nsefeed.FixedClock{At: now}
	todayDir := "/NSE/CM/DATA/" + nsefeed.MonthDDYYYY(now)
	const path = "/NSE/CM/DATA/July082025/EMPTY_090000.mkt.gz"
	h.transport.listing[todayDir] = []string{path}
	h.transport.files[path] = gzipBytes(t, nil)

	_, sub := h.bus.Subscribe()

	w := h.newWatcher(t, clock)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	seen, err := h.ledger.Seen(context.Background(), path)
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if !seen {
		t.Fatal("empty file should still be marked processed")
	}

	var count int
	if err := h.store.DB().QueryRow(`SELECT COUNT(*) FROM market_snapshots`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 0 {
		t.Fatalf("persisted rows = %d, want 0 for an empty file", count)
	}

	select {
	case batch := <-sub:
		t.Fatalf("unexpected published batch for an empty file: %+v", batch)
	default:
	}
}

func TestFallsBackToYesterdayWhenTodayListFails(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2025, time.July, 8, 9, 0, 0, 0, time.UTC)
	clock := nsefeed.FixedClock{At: now}
	todayDir := "/NSE/CM/DATA/" + nsefeed.MonthDDYYYY(now)
	yesterdayDir := "/NSE/CM/DATA/" + nsefeed.MonthDDYYYY(now.AddDate(0, 0, -1))
	const path = "/NSE/CM/DATA/July072025/RELIANCE_090000.mkt.gz"
	h.transport.listErrs[todayDir] = fmt.Errorf("connection reset")
	h.transport.listing[yesterdayDir] = []string{path}
	h.transport.files[path] = gzipBytes(t, oneMarketRecord(t, 500))

	w := h.newWatcher(t, clock)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	seen, err := h.ledger.Seen(context.Background(), path)
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if !seen {
		t.Fatal("yesterday's file should have been processed after today's listing failed")
	}
}
