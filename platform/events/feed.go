// Package events provides the state feed used to propagate value changes
// (such as the signed-in identity) from a producer to its observers.
// This is part of the platform layer and contains no business logic.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler receives values delivered by a Feed.
type Handler[T any] func(value T)

type subscription[T any] struct {
	fn     Handler[T]
	active atomic.Bool
}

type delivery[T any] struct {
	value   T
	targets []*subscription[T]
}

// Feed is an ordered last-value broadcast.
//
// Every published value becomes the current value and is delivered to the
// subscribers registered at publish time, in publish order. A new subscriber
// first receives the current value. Deliveries run on the goroutine that finds
// the queue idle; a Publish issued from inside a handler is queued behind the
// delivery in progress instead of recursing, so handlers may call back into
// code that publishes on the same feed.
type Feed[T any] struct {
	mu       sync.Mutex
	current  T
	subs     []*subscription[T]
	queue    []delivery[T]
	draining bool
	closed   bool
}

// NewFeed creates a feed whose current value is initial.
func NewFeed[T any](initial T) *Feed[T] {
	return &Feed[T]{current: initial}
}

// Current returns the most recently published value.
func (f *Feed[T]) Current() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Publish replaces the current value and delivers it to all active subscribers.
// Publishing on a closed feed is a no-op.
func (f *Feed[T]) Publish(value T) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.current = value
	targets := make([]*subscription[T], len(f.subs))
	copy(targets, f.subs)
	start := f.enqueueLocked(delivery[T]{value: value, targets: targets})
	f.mu.Unlock()

	if start {
		f.drain()
	}
}

// Subscribe registers fn and delivers the current value to it.
// The returned function unsubscribes; it is safe to call more than once and
// from inside fn. Once it returns, every queued delivery to fn is dropped; a
// delivery another goroutine had already dispatched may still be running.
func (f *Feed[T]) Subscribe(fn Handler[T]) (unsubscribe func()) {
	sub := &subscription[T]{fn: fn}
	sub.active.Store(true)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return func() {}
	}
	f.subs = append(f.subs, sub)
	start := f.enqueueLocked(delivery[T]{value: f.current, targets: []*subscription[T]{sub}})
	f.mu.Unlock()

	if start {
		f.drain()
	}

	var once sync.Once
	return func() {
		once.Do(func() { f.remove(sub) })
	}
}

// Subscribers reports how many handlers are registered.
func (f *Feed[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close unsubscribes every handler and drops pending deliveries.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for _, sub := range f.subs {
		sub.active.Store(false)
	}
	f.subs = nil
	f.queue = nil
}

func (f *Feed[T]) remove(sub *subscription[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub.active.Store(false)
	for i, s := range f.subs {
		if s == sub {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			break
		}
	}
}

// enqueueLocked appends d and reports whether the caller must drain.
func (f *Feed[T]) enqueueLocked(d delivery[T]) bool {
	f.queue = append(f.queue, d)
	if f.draining {
		return false
	}
	f.draining = true
	return true
}

func (f *Feed[T]) drain() {
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.draining = false
			f.mu.Unlock()
			return
		}
		next := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()

		for _, sub := range next.targets {
			if sub.active.Load() {
				deliver(sub.fn, next.value)
			}
		}
	}
}

func deliver[T any](fn Handler[T], value T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("feed handler panicked", slog.Any("panic", r))
		}
	}()
	fn(value)
}
