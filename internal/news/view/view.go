package view

import (
	"sync"
	"time"

	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/session"
)

// Entry is a released message as seen by one session.
type Entry struct {
	SessionID  session.ID
	Message    news.Message
	ReleasedAt time.Time
}

// NewsView maintains a bounded ring buffer of released messages.
type NewsView struct {
	mu    sync.RWMutex
	buf   []Entry
	size  int
	start int
	count int
}

// NewNewsView creates a new NewsView with the given capacity.
func NewNewsView(capacity int) *NewsView {
	if capacity <= 0 {
		capacity = 100
	}
	return &NewsView{
		buf:  make([]Entry, capacity),
		size: capacity,
	}
}

// Apply adds a released message to the view.
func (v *NewsView) Apply(e Entry) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.count < v.size {
		v.buf[(v.start+v.count)%v.size] = e
		v.count++
		return
	}
	// overwrite oldest
	v.buf[v.start] = e
	v.start = (v.start + 1) % v.size
}

// Latest returns the last n entries in chronological order (oldest first).
func (v *NewsView) Latest(n int) []Entry {
	return v.filter(n, func(Entry) bool { return true })
}

// Session returns the last n entries released in sid, oldest first.
func (v *NewsView) Session(sid session.ID, n int) []Entry {
	return v.filter(n, func(e Entry) bool { return e.SessionID == sid })
}

func (v *NewsView) filter(n int, keep func(Entry) bool) []Entry {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if n <= 0 || v.count == 0 {
		return nil
	}
	var out []Entry
	for i := v.count - 1; i >= 0 && len(out) < n; i-- {
		e := v.buf[(v.start+i)%v.size]
		if keep(e) {
			out = append(out, e)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Count returns the number of entries in the view.
func (v *NewsView) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.count
}
