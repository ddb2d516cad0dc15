// Package fanout delivers values to any number of buffered subscribers
// without ever blocking the publisher.
package fanout

import "sync"

// Subscription is a cancellable handle on a hub. C is closed after Close or
// when the hub closes.
type Subscription[T any] struct {
	C <-chan T

	ch     chan T
	hub    *Hub[T]
	closed bool // guarded by hub.mu
}

// Close stops delivery and closes C. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.hub.remove(s)
}

// Hub fans published values out to its subscribers. A subscriber whose
// buffer is full misses the value and onDrop is told.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   []*Subscription[T]
	buffer int
	onDrop func(T)
	closed bool
}

// New returns a hub giving each subscriber buffer slots. onDrop may be nil.
func New[T any](buffer int, onDrop func(T)) *Hub[T] {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub[T]{buffer: buffer, onDrop: onDrop}
}

// Subscribe adds a subscriber. After Close it returns one whose C is
// already closed.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, h.buffer)
	s := &Subscription[T]{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.closed = true
		close(ch)
		return s
	}
	h.subs = append(h.subs, s)
	return s
}

func (h *Hub[T]) remove(s *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	for i, sub := range h.subs {
		if sub == s {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}
}

// Publish hands v to every subscriber that has room for it.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		select {
		case s.ch <- v:
		default:
			if h.onDrop != nil {
				h.onDrop(v)
			}
		}
	}
}

// Close ends every subscription. It is idempotent.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, s := range h.subs {
		s.closed = true
		close(s.ch)
	}
	h.subs = nil
}
