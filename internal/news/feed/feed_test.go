package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/session"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type failingSink struct{ err error }

func (f failingSink) InsertMessages(context.Context, []news.Message) error { return f.err }
func (f failingSink) MarkReleased(context.Context, session.ID, news.MessageID, time.Time) error {
	return f.err
}

func newTestFeed(clock *fakeClock, poolSize int) *Feed {
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	cfg.Rand = rand.New(rand.NewSource(7))
	f := New(cfg, nil)
	f.Load(makeMessages(poolSize))
	return f
}

func makeMessages(n int) []news.Message {
	out := make([]news.Message, n)
	for i := range out {
		out[i] = news.Message{
			ID:      news.MessageID(fmt.Sprintf("m%02d", i)),
			Content: fmt.Sprintf("message %d", i),
			Impact:  news.Bullish,
			Value:   decimal.NewFromInt(int64(i + 1)),
		}
	}
	return out
}

func activeSession(f *Feed, t *testing.T) *session.Session {
	t.Helper()
	msgs, err := f.Sample(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := &session.Session{ID: "s1", Active: true, InitialPrice: decimal.NewFromInt(70)}
	for _, m := range msgs {
		s.Messages = append(s.Messages, news.Release{Message: m})
	}
	return s
}

func TestSampleDistinct(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := newTestFeed(clock, 12)

	for round := 0; round < 20; round++ {
		msgs, err := f.Sample(8)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(msgs) != 8 {
			t.Fatalf("expected 8 messages, got %d", len(msgs))
		}
		seen := make(map[news.MessageID]bool)
		for _, m := range msgs {
			if seen[m.ID] {
				t.Fatalf("duplicate message %s in sample", m.ID)
			}
			seen[m.ID] = true
		}
	}
}

func TestSampleExactPool(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := newTestFeed(clock, 8)

	msgs, err := f.Sample(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 8 {
		t.Errorf("expected 8 messages, got %d", len(msgs))
	}
}

func TestSampleInsufficient(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := newTestFeed(clock, 7)

	_, err := f.Sample(8)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestReleasePacing(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := newTestFeed(clock, 10)
	s := activeSession(f, t)
	ctx := context.Background()

	first, err := f.Release(ctx, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(10 * time.Second)
	_, err = f.Release(ctx, s)
	if !errors.Is(err, ErrTooSoon) {
		t.Fatalf("expected ErrTooSoon, got %v", err)
	}
	var tooSoon *TooSoonError
	if !errors.As(err, &tooSoon) || tooSoon.Wait != 10*time.Second {
		t.Errorf("expected 10s wait, got %v", err)
	}
	if len(s.Unreleased()) != 7 {
		t.Errorf("expected 7 unreleased, got %d", len(s.Unreleased()))
	}

	clock.Advance(11 * time.Second)
	second, err := f.Release(ctx, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID == first.ID {
		t.Error("expected a different message")
	}
}

func TestReleaseExactInterval(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := newTestFeed(clock, 10)
	s := activeSession(f, t)
	ctx := context.Background()

	if _, err := f.Release(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(20 * time.Second)
	if f.RetryAfter(*s) != 0 {
		t.Errorf("expected no wait at exactly 20s, got %s", f.RetryAfter(*s))
	}
	if _, err := f.Release(ctx, s); err != nil {
		t.Fatalf("expected release at exactly 20s, got %v", err)
	}
}

func TestReleaseExhausted(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := newTestFeed(clock, 8)
	s := activeSession(f, t)
	ctx := context.Background()

	seen := make(map[news.MessageID]bool)
	for i := 0; i < 8; i++ {
		m, err := f.Release(ctx, s)
		if err != nil {
			t.Fatalf("release %d: unexpected error: %v", i, err)
		}
		if seen[m.ID] {
			t.Fatalf("message %s released twice", m.ID)
		}
		seen[m.ID] = true
		clock.Advance(21 * time.Second)
	}

	_, err := f.Release(ctx, s)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	for _, r := range s.Messages {
		if !r.Released() {
			t.Error("expected every slot released")
		}
	}
}

func TestReleaseRequiresActiveSession(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := newTestFeed(clock, 8)

	if _, err := f.Release(context.Background(), nil); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession for nil session, got %v", err)
	}

	s := activeSession(f, t)
	s.Active = false
	if _, err := f.Release(context.Background(), s); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession for finished session, got %v", err)
	}
}

func TestReleaseSinkFailure(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	boom := errors.New("db down")
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	f := New(cfg, failingSink{err: boom})
	f.Load(makeMessages(8))
	s := activeSession(f, t)

	_, err := f.Release(context.Background(), s)
	if !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if len(s.Unreleased()) != 8 {
		t.Errorf("expected nothing stamped, got %d unreleased", len(s.Unreleased()))
	}
}

func TestImportFillsIDs(t *testing.T) {
	f := New(DefaultConfig(), nil)
	got, err := f.Import(context.Background(), []news.Message{
		{Content: "Oil terminal strike announced", Impact: news.Bearish, Value: decimal.NewFromInt(5)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].ID == "" {
		t.Error("expected id to be assigned")
	}
	if f.Len() != 1 {
		t.Errorf("expected pool size 1, got %d", f.Len())
	}
}
