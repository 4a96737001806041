package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/session"
)

var (
	ErrInsufficientData = errors.New("not enough messages in the pool")
	ErrNoSession        = errors.New("no active session")
	ErrTooSoon          = errors.New("too soon for the next message")
	ErrExhausted        = errors.New("all messages have been released")
)

// TooSoonError carries how long the caller has to wait. It matches ErrTooSoon.
type TooSoonError struct {
	Wait time.Duration
}

func (e *TooSoonError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrTooSoon, e.Wait.Round(time.Second))
}

func (e *TooSoonError) Is(target error) bool { return target == ErrTooSoon }

// Sink persists the pool and release stamps. A nil Sink keeps everything in
// memory.
type Sink interface {
	InsertMessages(ctx context.Context, msgs []news.Message) error
	MarkReleased(ctx context.Context, sid session.ID, id news.MessageID, at time.Time) error
}

// Feed owns the message pool and the release state machine.
type Feed struct {
	cfg  Config
	sink Sink

	mu   sync.Mutex
	pool []news.Message
}

// New creates a Feed. sink may be nil.
func New(cfg Config, sink Sink) *Feed {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultConfig().MinInterval
	}
	if cfg.Now == nil {
		cfg.Now = DefaultConfig().Now
	}
	if cfg.Rand == nil {
		cfg.Rand = DefaultConfig().Rand
	}
	return &Feed{cfg: cfg, sink: sink}
}

// Load adds previously persisted messages without writing them back.
func (f *Feed) Load(msgs []news.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pool = append(f.pool, msgs...)
}

// Add puts msgs in the pool without persisting them.
func (f *Feed) Add(msgs ...news.Message) {
	f.Load(msgs)
}

// Import persists msgs and adds them to the pool. Missing IDs are filled in.
func (f *Feed) Import(ctx context.Context, msgs []news.Message) ([]news.Message, error) {
	out := make([]news.Message, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = news.NewMessageID()
		}
		out[i] = m
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sink != nil && len(out) > 0 {
		if err := f.sink.InsertMessages(ctx, out); err != nil {
			return nil, fmt.Errorf("persist messages: %w", err)
		}
	}
	f.pool = append(f.pool, out...)
	return out, nil
}

// Len returns the pool size.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pool)
}

// Messages returns a copy of the pool.
func (f *Feed) Messages() []news.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]news.Message(nil), f.pool...)
}

// Sample picks n distinct messages uniformly at random.
func (f *Feed) Sample(n int) ([]news.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n < 0 || len(f.pool) < n {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientData, n, len(f.pool))
	}

	// partial Fisher-Yates over a copy of the indexes
	idx := make([]int, len(f.pool))
	for i := range idx {
		idx[i] = i
	}
	out := make([]news.Message, n)
	for i := 0; i < n; i++ {
		j := i + f.cfg.Rand.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = f.pool[idx[i]]
	}
	return out, nil
}

// RetryAfter returns how long until s may release again, zero when it may
// release now.
func (f *Feed) RetryAfter(s session.Session) time.Duration {
	last := s.LastReleasedAt()
	if last.IsZero() {
		return 0
	}
	wait := f.cfg.MinInterval - f.cfg.Now().Sub(last)
	if wait < 0 {
		return 0
	}
	return wait
}

// Release stamps one unreleased message of s with the current time and
// returns it. The caller must serialize calls for the same session.
func (f *Feed) Release(ctx context.Context, s *session.Session) (news.Message, error) {
	if s == nil || !s.Active {
		return news.Message{}, ErrNoSession
	}

	now := f.cfg.Now()
	if last := s.LastReleasedAt(); !last.IsZero() {
		if wait := f.cfg.MinInterval - now.Sub(last); wait > 0 {
			return news.Message{}, &TooSoonError{Wait: wait}
		}
	}

	pending := s.Unreleased()
	if len(pending) == 0 {
		return news.Message{}, ErrExhausted
	}

	f.mu.Lock()
	pick := pending[f.cfg.Rand.Intn(len(pending))]
	f.mu.Unlock()

	msg := s.Messages[pick].Message
	if f.sink != nil {
		if err := f.sink.MarkReleased(ctx, s.ID, msg.ID, now); err != nil {
			return news.Message{}, fmt.Errorf("persist release: %w", err)
		}
	}
	s.Messages[pick].ReleasedAt = now

	log.Info().
		Str("session", string(s.ID)).
		Str("message", string(msg.ID)).
		Str("impact", string(msg.Impact)).
		Str("value", msg.Value.String()).
		Int("remaining", len(pending)-1).
		Msg("message released")
	return msg, nil
}
