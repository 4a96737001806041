package view

import "sync"

// TradeTape is a ring buffer for recent trades (bounded memory).
type TradeTape[T any] struct {
	mu    sync.RWMutex
	buf   []T
	size  int
	start int
	count int
}

// NewTradeTape creates a new TradeTape with the given capacity.
func NewTradeTape[T any](capacity int) *TradeTape[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &TradeTape[T]{
		buf:  make([]T, capacity),
		size: capacity,
	}
}

// Append adds a trade to the tape, overwriting the oldest when full.
func (t *TradeTape[T]) Append(tr T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.count < t.size {
		t.buf[(t.start+t.count)%t.size] = tr
		t.count++
		return
	}
	t.buf[t.start] = tr
	t.start = (t.start + 1) % t.size
}

// Last returns a copy of the last n trades in chronological order.
func (t *TradeTape[T]) Last(n int) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || t.count == 0 {
		return nil
	}
	if n > t.count {
		n = t.count
	}
	out := make([]T, n)
	first := (t.start + (t.count - n)) % t.size
	for i := 0; i < n; i++ {
		out[i] = t.buf[(first+i)%t.size]
	}
	return out
}

// Count returns the number of trades held.
func (t *TradeTape[T]) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Clear drops every trade.
func (t *TradeTape[T]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	for i := range t.buf {
		t.buf[i] = zero
	}
	t.start = 0
	t.count = 0
}
