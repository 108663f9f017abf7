// Copyright (c) 2024 Neomantra Corp
//
// Package bus is the in-memory subscriber fan-out: the watcher and daily
// jobs publish decoded Batch values, and each subscriber drains its own
// buffered channel at its own pace. Nothing is persisted; a restart
// starts every subscriber fresh.

package nsefeed_bus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	nsefeed "github.com/nse-cmfeed/nse-cmfeed"
)

// defaultBufferSize is how many Batch values a subscriber's channel can
// hold before the drop-oldest policy kicks in.
const defaultBufferSize = 256

// SubscriberID identifies one subscription returned by Bus.Subscribe.
type SubscriberID uint64

type subscriber struct {
	id      SubscriberID
	ch      chan nsefeed.Batch
	mu      sync.Mutex
	dropped uint64
}

// Bus is an in-memory, non-blocking publish/subscribe fan-out for decoded
// batches. The zero value is not usable; construct with New.
type Bus struct {
	logger *slog.Logger

	mu         sync.RWMutex
	subs       map[SubscriberID]*subscriber
	nextID     uint64
	bufferSize int
}

// New returns a Bus whose subscriber channels are buffered to bufferSize
// (defaultBufferSize if bufferSize <= 0).
func New(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:     logger,
		subs:       make(map[SubscriberID]*subscriber),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a new subscriber and returns its ID and a
// receive-only channel of published batches. The channel is closed by
// Unsubscribe.
func (b *Bus) Subscribe() (SubscriberID, <-chan nsefeed.Batch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := SubscriberID(b.nextID)
	sub := &subscriber{id: id, ch: make(chan nsefeed.Batch, b.bufferSize)}
	b.subs[id] = sub
	return id, sub.ch
}

// Unsubscribe removes and closes a subscriber's channel. It is safe to
// call more than once; in-flight Publish calls to other subscribers are
// unaffected, since each subscriber has its own mutex rather than the bus
// holding one global lock during delivery.
func (b *Bus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	sub.mu.Lock()
	close(sub.ch)
	sub.mu.Unlock()
}

// Publish delivers batch to every current subscriber. Delivery never
// blocks the caller: a subscriber whose channel is full has its oldest
// queued batch dropped to make room, rather than the bus disconnecting it
// or Publish blocking until that subscriber catches up. A slow or stalled
// subscriber therefore only ever loses its own oldest data; it never
// slows down or disconnects any other subscriber.
func (b *Bus) Publish(batch nsefeed.Batch) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.send(batch, b.logger)
	}
}

func (s *subscriber) send(batch nsefeed.Batch, logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.ch <- batch:
		return
	default:
	}
	// Channel is full: drop the oldest queued batch, then enqueue.
	select {
	case <-s.ch:
		atomic.AddUint64(&s.dropped, 1)
		logger.Warn("subscriber channel full, dropped oldest batch",
			"subscriber_id", s.id, "total_dropped", atomic.LoadUint64(&s.dropped))
	default:
	}
	select {
	case s.ch <- batch:
	default:
		// Another goroutine drained concurrently; give up silently rather
		// than spin, since a retry isn't required for correctness here.
	}
}

// Dropped returns how many batches have been dropped for the subscriber
// with the given ID, for metrics/logging. Returns 0 for an unknown ID.
func (b *Bus) Dropped(id SubscriberID) uint64 {
	b.mu.RLock()
	sub, ok := b.subs[id]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadUint64(&sub.dropped)
}

// SubscriberCount reports how many subscribers are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
