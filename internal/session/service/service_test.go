package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/news/feed"
	"github.com/zappabad/bargetrader/internal/session"
	"github.com/zappabad/bargetrader/internal/trader"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type attachment struct {
	ai  trader.ID
	sid session.ID
}

type fakeAttacher struct {
	mu       sync.Mutex
	fail     trader.ID
	attached map[attachment]decimal.Decimal
}

func (a *fakeAttacher) Attach(_ context.Context, id trader.ID, sid session.ID, price decimal.Decimal) (trader.AI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id == a.fail {
		return trader.AI{}, errors.New("ai unavailable")
	}
	if a.attached == nil {
		a.attached = make(map[attachment]decimal.Decimal)
	}
	a.attached[attachment{id, sid}] = price
	return trader.AI{ID: id, FairValue: &price}, nil
}

func (a *fakeAttacher) Detach(_ context.Context, id trader.ID, sid session.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.attached, attachment{id, sid})
	return nil
}

func (a *fakeAttacher) price(id trader.ID, sid session.ID) (decimal.Decimal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.attached[attachment{id, sid}]
	return p, ok
}

func (a *fakeAttacher) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.attached)
}

type fakeStore struct {
	err   error
	saves [][]session.Session
}

func (f *fakeStore) SaveSessions(_ context.Context, sessions ...session.Session) error {
	if f.err != nil {
		return f.err
	}
	f.saves = append(f.saves, sessions)
	return nil
}

func msg(impact news.ImpactType, value int64) news.Message {
	return news.Message{ID: news.NewMessageID(), Content: "x", Impact: impact, Value: decimal.NewFromInt(value)}
}

func poolOf(n int) []news.Message {
	out := make([]news.Message, n)
	for i := range out {
		out[i] = msg(news.Bullish, 1)
	}
	return out
}

type fixture struct {
	svc   *Service
	feed  *feed.Feed
	clock *fakeClock
	ais   *fakeAttacher
	store *fakeStore
}

func newFixture(pool []news.Message, poolSize int) *fixture {
	clock := &fakeClock{now: time.Unix(10_000, 0)}
	fcfg := feed.DefaultConfig()
	fcfg.Now = clock.Now
	fcfg.Rand = rand.New(rand.NewSource(1))
	f := feed.New(fcfg, nil)
	f.Load(pool)

	cfg := DefaultConfig()
	cfg.Now = clock.Now
	cfg.PoolSize = poolSize
	ais := &fakeAttacher{}
	store := &fakeStore{}
	return &fixture{svc: NewService(cfg, f, ais, store), feed: f, clock: clock, ais: ais, store: store}
}

func TestCreate(t *testing.T) {
	fx := newFixture(poolOf(10), 8)

	sess, err := fx.svc.Create(context.Background(), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.Active {
		t.Error("expected session to be active")
	}
	if len(sess.Messages) != 8 {
		t.Errorf("expected 8 messages, got %d", len(sess.Messages))
	}
	if !sess.InitialPrice.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected initial price 70, got %s", sess.InitialPrice)
	}
	if len(fx.store.saves) != 1 {
		t.Errorf("expected 1 save, got %d", len(fx.store.saves))
	}
}

func TestCreateInsufficientData(t *testing.T) {
	fx := newFixture(poolOf(7), 8)

	_, err := fx.svc.Create(context.Background(), decimal.NewFromInt(70))
	if !errors.Is(err, feed.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if n := len(fx.svc.All()); n != 0 {
		t.Errorf("expected no sessions, got %d", n)
	}
	if len(fx.store.saves) != 0 {
		t.Errorf("expected nothing persisted, got %d saves", len(fx.store.saves))
	}
}

func TestStartSwapsActiveSession(t *testing.T) {
	fx := newFixture(poolOf(10), 8)
	ctx := context.Background()

	first, err := fx.svc.Start(ctx, "p", []trader.ID{"ai1", "ai2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p, ok := fx.ais.price("ai1", first.ID); !ok || !p.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected ai1 attached at 70, got %s", p)
	}

	fx.clock.Advance(time.Minute)
	second, err := fx.svc.Start(ctx, "p", []trader.ID{"ai1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	old, _ := fx.svc.Get(first.ID)
	if old.Active {
		t.Error("expected first session to be finished")
	}
	if old.SettlementPrice == nil {
		t.Error("expected settlement price on first session")
	}
	if !old.FinishedAt.Equal(fx.clock.Now()) {
		t.Errorf("expected finished at %s, got %s", fx.clock.Now(), old.FinishedAt)
	}

	active, ok := fx.svc.Active("p")
	if !ok || active.ID != second.ID {
		t.Errorf("expected active session %s, got %s", second.ID, active.ID)
	}
	latest, _ := fx.svc.Latest("p")
	if latest.ID != second.ID {
		t.Errorf("expected latest session %s, got %s", second.ID, latest.ID)
	}

	if _, ok := fx.ais.price("ai2", first.ID); ok {
		t.Error("expected ai2 detached from the finished session")
	}
	if _, ok := fx.ais.price("ai1", second.ID); !ok || fx.ais.count() != 1 {
		t.Errorf("expected only ai1 attached to the new session, got %d attachments", fx.ais.count())
	}

	lastSave := fx.store.saves[len(fx.store.saves)-1]
	if len(lastSave) != 2 {
		t.Errorf("expected finish and create in one save, got %d", len(lastSave))
	}
}

func TestStartConcurrentSinglePlayer(t *testing.T) {
	fx := newFixture(poolOf(20), 8)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fx.svc.Start(ctx, "p", nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	active := 0
	for _, s := range fx.svc.All() {
		if s.Active && s.HasPlayer("p") {
			active++
		}
	}
	if active != 1 {
		t.Errorf("expected exactly 1 active session, got %d", active)
	}
}

func TestStartStoreFailure(t *testing.T) {
	fx := newFixture(poolOf(10), 8)
	ctx := context.Background()

	first, _ := fx.svc.Start(ctx, "p", nil)
	fx.store.err = errors.New("db locked")

	if _, err := fx.svc.Start(ctx, "p", nil); err == nil {
		t.Fatal("expected error")
	}
	active, ok := fx.svc.Active("p")
	if !ok || active.ID != first.ID {
		t.Error("expected first session to stay active")
	}
	if n := len(fx.svc.All()); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}
}

func TestStartAttachFailure(t *testing.T) {
	fx := newFixture(poolOf(10), 8)
	fx.ais.fail = "ai2"

	if _, err := fx.svc.Start(context.Background(), "p", []trader.ID{"ai1", "ai2", "ai3"}); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := fx.svc.Active("p"); ok {
		t.Error("expected no active session")
	}
	if n := len(fx.svc.All()); n != 0 {
		t.Errorf("expected no sessions, got %d", n)
	}
	if len(fx.store.saves) != 0 {
		t.Errorf("expected nothing persisted, got %d saves", len(fx.store.saves))
	}
	if n := fx.ais.count(); n != 0 {
		t.Errorf("expected attached AIs rolled back, got %d", n)
	}
}

func TestFinishDetachesAIs(t *testing.T) {
	fx := newFixture(poolOf(10), 8)
	ctx := context.Background()

	sess, err := fx.svc.Start(ctx, "p", []trader.ID{"ai1", "ai2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := fx.ais.count(); n != 2 {
		t.Fatalf("expected 2 attachments, got %d", n)
	}
	if _, err := fx.svc.Finish(ctx, sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := fx.ais.count(); n != 0 {
		t.Errorf("expected no attachments after finish, got %d", n)
	}
}

func TestFinishSettlement(t *testing.T) {
	pool := []news.Message{
		msg(news.Bullish, 10),
		msg(news.Bullish, 7),
		msg(news.Bearish, 5),
		msg(news.Bearish, 3),
	}
	fx := newFixture(pool, 4)
	ctx := context.Background()

	sess, err := fx.svc.Start(ctx, "p", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	done, err := fx.svc.Finish(ctx, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Active {
		t.Error("expected finished session")
	}
	if !done.SettlementPrice.Equal(decimal.RequireFromString("75.92")) {
		t.Errorf("expected settlement 75.92, got %s", done.SettlementPrice)
	}
	if _, ok := fx.svc.Active("p"); ok {
		t.Error("expected no active session after finish")
	}

	if _, err := fx.svc.Finish(ctx, sess.ID); !errors.Is(err, ErrFinished) {
		t.Errorf("expected ErrFinished, got %v", err)
	}
	if _, err := fx.svc.Finish(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRelease(t *testing.T) {
	fx := newFixture(poolOf(10), 8)
	ctx := context.Background()

	sess, _ := fx.svc.Start(ctx, "p", nil)
	if _, _, err := fx.svc.Release(ctx, sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fx.clock.Advance(5 * time.Second)
	if _, _, err := fx.svc.Release(ctx, sess.ID); !errors.Is(err, feed.ErrTooSoon) {
		t.Fatalf("expected ErrTooSoon, got %v", err)
	}
	if wait := fx.svc.RetryAfter(sess.ID); wait != 15*time.Second {
		t.Errorf("expected 15s wait, got %s", wait)
	}

	fx.clock.Advance(15 * time.Second)
	_, after, err := fx.svc.Release(ctx, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(after.Unreleased()); n != 6 {
		t.Errorf("expected 6 unreleased, got %d", n)
	}

	fx.svc.Finish(ctx, sess.ID)
	fx.clock.Advance(time.Minute)
	if _, _, err := fx.svc.Release(ctx, sess.ID); !errors.Is(err, feed.ErrNoSession) {
		t.Errorf("expected ErrNoSession after finish, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	fx := newFixture(poolOf(10), 8)
	older := session.Session{ID: "a", Active: false, CreatedAt: time.Unix(1, 0), Players: []trader.ID{"p"}}
	newer := session.Session{ID: "b", Active: true, CreatedAt: time.Unix(2, 0), Players: []trader.ID{"p"}}
	fx.svc.Load([]session.Session{newer, older})

	active, ok := fx.svc.Active("p")
	if !ok || active.ID != "b" {
		t.Errorf("expected active b, got %v", active.ID)
	}
	latest, _ := fx.svc.Latest("p")
	if latest.ID != "b" {
		t.Errorf("expected latest b, got %s", latest.ID)
	}
	if len(fx.store.saves) != 0 {
		t.Error("expected load not to persist")
	}
}
