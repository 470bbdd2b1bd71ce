// Package feed runs the scheduled quote and history refreshes and hands the
// latest results to any number of readers.
package feed

import (
	"context"
	"sync"
	"time"
)

// Holder keeps the most recent value published by a single writer.
// Readers either poll Latest or Subscribe for every new value.
type Holder[T any] struct {
	mu     sync.RWMutex
	val    T
	set    bool
	subs   map[uint64]chan T
	nextID uint64
	closed bool
}

// NewHolder creates an empty Holder
func NewHolder[T any]() *Holder[T] {
	return &Holder[T]{subs: make(map[uint64]chan T)}
}

// Publish replaces the current value and notifies subscribers.
// A slow subscriber only ever sees the newest value.
func (h *Holder[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.val = v
	h.set = true
	for _, ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Latest returns the current value and whether anything was published yet
func (h *Holder[T]) Latest() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.val, h.set
}

// Subscribe returns a channel receiving each published value and a cancel
// func that closes it. The current value, if any, is delivered first.
func (h *Holder[T]) Subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan T, 1)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.set {
		ch <- h.val
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
}

// Close ends every subscription. Later subscribers get a closed channel;
// Latest keeps working.
func (h *Holder[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// every runs fn immediately and then on each tick until ctx is done
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}
