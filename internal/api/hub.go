package api

import "sync"

type subscription[T any] struct {
	ch     chan T
	player string
}

type hub[T any] struct {
	mu   sync.RWMutex
	subs map[*subscription[T]]struct{}
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subs: make(map[*subscription[T]]struct{})}
}

func (h *hub[T]) Subscribe(player string, buffer int) *subscription[T] {
	sub := &subscription[T]{ch: make(chan T, buffer), player: player}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub[T]) Unsubscribe(sub *subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Broadcast delivers value to every subscriber accepted by keep. Slow
// subscribers miss values.
func (h *hub[T]) Broadcast(value T, keep func(player string) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if keep != nil && !keep(sub.player) {
			continue
		}
		select {
		case sub.ch <- value:
		default:
		}
	}
}

// Close drops every subscriber.
func (h *hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
