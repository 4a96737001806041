package game

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/market"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/news/feed"
	"github.com/zappabad/bargetrader/internal/store/sqlstore"
	"github.com/zappabad/bargetrader/internal/trader"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig(c *clock) Config {
	cfg := DefaultConfig()
	cfg.Feed.Now = c.Now
	cfg.Feed.Rand = rand.New(rand.NewSource(1))
	cfg.Session.Now = c.Now
	cfg.Ledger.Now = c.Now
	return cfg
}

func newTestGame(t *testing.T, store Store) (*Game, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	g, err := New(context.Background(), testConfig(c), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(g.Close)
	return g, c
}

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestJoin(t *testing.T) {
	g, _ := newTestGame(t, nil)
	ctx := context.Background()

	h, created, err := g.Join(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected player to be created")
	}

	again, created, err := g.Join(ctx, " Alice ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created || again.ID != h.ID {
		t.Errorf("expected existing player %s, got %s (created=%v)", h.ID, again.ID, created)
	}

	if _, _, err := g.Join(ctx, "  "); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestNewSeedsRosterAndNews(t *testing.T) {
	g, _ := newTestGame(t, nil)

	if n := len(g.Roster.AIs()); n != len(DefaultAIs()) {
		t.Errorf("expected %d AIs, got %d", len(DefaultAIs()), n)
	}
	if g.Feed.Len() < 8 {
		t.Errorf("expected seeded pool of at least 8, got %d", g.Feed.Len())
	}
	for _, q := range g.Book("") {
		if q.Quoting() {
			t.Errorf("expected %s not to quote before a session", q.Name)
		}
	}
}

func TestStartSession(t *testing.T) {
	g, _ := newTestGame(t, nil)
	ctx := context.Background()
	h, _, _ := g.Join(ctx, "alice")

	sess, err := g.StartSession(ctx, h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sess.Messages) != 8 || len(sess.AIs) != 3 || !sess.HasPlayer(h.ID) {
		t.Errorf("unexpected session %+v", sess)
	}

	p, _ := g.Player(h.ID)
	if p.SessionID != string(sess.ID) {
		t.Errorf("expected player session %s, got %s", sess.ID, p.SessionID)
	}
	for _, q := range g.Book(h.ID) {
		if !q.FairValue.Equal(decimal.NewFromInt(70)) {
			t.Errorf("expected %s fair value 70, got %s", q.Name, q.FairValue)
		}
	}

	// starting again finishes the first session
	next, err := g.StartSession(ctx, h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prev, _ := g.Sessions.Get(sess.ID)
	if prev.Active || prev.SettlementPrice == nil {
		t.Errorf("expected previous session finished and settled, got %+v", prev)
	}
	active, _ := g.Sessions.Active(h.ID)
	if active.ID != next.ID {
		t.Errorf("expected active session %s, got %s", next.ID, active.ID)
	}
}

func TestStartSessionUnknownPlayer(t *testing.T) {
	g, _ := newTestGame(t, nil)
	if _, err := g.StartSession(context.Background(), "ghost"); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("expected ErrUnknownPlayer, got %v", err)
	}
}

func TestNextMessage(t *testing.T) {
	g, c := newTestGame(t, nil)
	ctx := context.Background()
	h, _, _ := g.Join(ctx, "alice")

	if _, err := g.NextMessage(ctx, h.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := g.StartSession(ctx, h.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rel, err := g.NextMessage(ctx, h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := decimal.NewFromInt(70).Mul(decimal.RequireFromString("1.05"))
	if rel.Message.Impact == news.Bearish {
		want = decimal.NewFromInt(70).Mul(decimal.RequireFromString("0.95"))
	}
	for _, q := range g.Book(h.ID) {
		if !q.FairValue.Equal(want) {
			t.Errorf("expected %s fair value %s, got %s", q.Name, want, q.FairValue)
		}
	}

	if _, err := g.NextMessage(ctx, h.ID); !errors.Is(err, feed.ErrTooSoon) {
		t.Fatalf("expected ErrTooSoon, got %v", err)
	}
	if wait := g.RetryAfter(h.ID); wait != 20*time.Second {
		t.Errorf("expected 20s wait, got %v", wait)
	}

	for i := 1; i < 8; i++ {
		c.Advance(20 * time.Second)
		if _, err := g.NextMessage(ctx, h.ID); err != nil {
			t.Fatalf("release %d: unexpected error: %v", i+1, err)
		}
	}
	c.Advance(20 * time.Second)
	if _, err := g.NextMessage(ctx, h.ID); !errors.Is(err, feed.ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}

	st, _ := g.State(h.ID)
	if len(st.News) != 8 {
		t.Errorf("expected 8 released messages in state, got %d", len(st.News))
	}
}

func TestNextMessageSkipsFailingAI(t *testing.T) {
	g, _ := newTestGame(t, nil)
	ctx := context.Background()
	h, _, _ := g.Join(ctx, "alice")
	sess, err := g.StartSession(ctx, h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gone := sess.AIs[0]
	if err := g.AIs.Detach(ctx, gone, sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rel, err := g.NextMessage(ctx, h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := decimal.NewFromInt(70).Mul(decimal.RequireFromString("1.05"))
	if rel.Message.Impact == news.Bearish {
		want = decimal.NewFromInt(70).Mul(decimal.RequireFromString("0.95"))
	}
	moved := 0
	for _, q := range g.Book(h.ID) {
		if q.AIID == gone {
			if q.Quoting() {
				t.Errorf("expected detached %s to stay unquoted", q.Name)
			}
			continue
		}
		if !q.FairValue.Equal(want) {
			t.Errorf("expected %s fair value %s, got %s", q.Name, want, q.FairValue)
		}
		moved++
	}
	if moved != len(sess.AIs)-1 {
		t.Errorf("expected %d ais to take the message, got %d", len(sess.AIs)-1, moved)
	}
}

func TestUpdateQuoteTrades(t *testing.T) {
	g, _ := newTestGame(t, nil)
	ctx := context.Background()
	h, _, _ := g.Join(ctx, "alice")

	// without a session the quote is stored but nobody trades
	res, err := g.UpdateQuote(ctx, h.ID, market.QuoteUpdate{Offer: d("68")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("expected no trades without a session, got %d", len(res.Trades))
	}

	if _, err := g.StartSession(ctx, h.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err = g.UpdateQuote(ctx, h.ID, market.QuoteUpdate{Bid: d("60"), Offer: d("68")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 3 {
		t.Fatalf("expected every AI to buy, got %d trades", len(res.Trades))
	}
	if res.Human.Position != -6000 {
		t.Errorf("expected position -6000, got %d", res.Human.Position)
	}

	sum, err := g.Summary(h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.SellTradesCount != 3 || sum.BuyTradesCount != 0 {
		t.Errorf("expected 3 sells, got %+v", sum)
	}
	if !sum.CashFlow.Equal(decimal.NewFromInt(408000)) {
		t.Errorf("expected cash flow 408000, got %s", sum.CashFlow)
	}

	// crossing an AI quote is rejected and changes nothing
	if _, err := g.UpdateQuote(ctx, h.ID, market.QuoteUpdate{Bid: d("80")}); !errors.Is(err, market.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	p, _ := g.Player(h.ID)
	if !p.Bid.Equal(decimal.NewFromInt(60)) {
		t.Errorf("expected bid unchanged at 60, got %s", p.Bid)
	}
}

func TestExecute(t *testing.T) {
	g, _ := newTestGame(t, nil)
	ctx := context.Background()
	h, _, _ := g.Join(ctx, "alice")
	carl := g.Roster.AIs()[0]

	if _, err := g.Execute(ctx, h.ID, carl.ID, market.SideBuy, nil); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := g.StartSession(ctx, h.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := g.Execute(ctx, h.ID, carl.ID, market.SideBuy, d("76")); !errors.Is(err, market.ErrStaleQuote) {
		t.Errorf("expected ErrStaleQuote, got %v", err)
	}
	if _, err := g.Execute(ctx, h.ID, "nobody", market.SideBuy, nil); !errors.Is(err, ErrUnknownAI) {
		t.Errorf("expected ErrUnknownAI, got %v", err)
	}

	tr, err := g.Execute(ctx, h.ID, carl.ID, market.SideBuy, d("77"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Buyer != h.ID || !tr.Price.Equal(decimal.NewFromInt(77)) || tr.Quantity != 2000 {
		t.Errorf("unexpected trade %+v", tr)
	}
	p, _ := g.Player(h.ID)
	if p.Position != 2000 || !p.CashFlow.Equal(decimal.NewFromInt(-154000)) {
		t.Errorf("expected synced snapshot 2000/-154000, got %d/%s", p.Position, p.CashFlow)
	}
}

func TestFinishSession(t *testing.T) {
	g, _ := newTestGame(t, nil)
	ctx := context.Background()
	h, _, _ := g.Join(ctx, "alice")

	sess, err := g.StartSession(ctx, h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	done, err := g.FinishSession(ctx, h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Active || done.SettlementPrice == nil || !done.SettlementPrice.Equal(sess.Settle()) {
		t.Errorf("expected settlement %s, got %+v", sess.Settle(), done.SettlementPrice)
	}
	p, _ := g.Player(h.ID)
	if p.SessionID != "" {
		t.Errorf("expected player session cleared, got %s", p.SessionID)
	}
	if _, err := g.FinishSession(ctx, h.ID); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}

	// summary still reflects the finished session
	if _, err := g.Summary(h.ID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSummaryWithoutSession(t *testing.T) {
	g, _ := newTestGame(t, nil)
	h, _, _ := g.Join(context.Background(), "alice")

	sum, err := g.Summary(h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Position != 0 || !sum.CashFlow.IsZero() || sum.BuyTradesCount != 0 || sum.SellTradesCount != 0 {
		t.Errorf("expected zero summary, got %+v", sum)
	}
}

func TestEvents(t *testing.T) {
	g, _ := newTestGame(t, nil)
	ctx := context.Background()
	h, _, _ := g.Join(ctx, "alice")

	if _, err := g.StartSession(ctx, h.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-g.Events():
			if ev.Type == EventSessionStarted {
				if ev.Player != h.ID {
					t.Errorf("expected event for %s, got %s", h.ID, ev.Player)
				}
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for session_started")
		}
	}
}

func TestHydrateFromStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "game.db")

	store, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	c := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	g, err := New(ctx, testConfig(c), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, _, _ := g.Join(ctx, "alice")
	sess, err := g.StartSession(ctx, h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.NextMessage(ctx, h.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// just above the AI bids and below fair value, so every AI buys
	offer := g.Book(h.ID)[0].Bid.Add(decimal.NewFromInt(1))
	res, err := g.UpdateQuote(ctx, h.ID, market.QuoteUpdate{Offer: &offer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) == 0 {
		t.Fatal("expected trades")
	}
	book := g.Book(h.ID)
	pool := g.Feed.Len()
	trades := g.Ledger.Len()
	g.Close()

	g2, err := New(ctx, testConfig(c), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer g2.Close()

	if g2.Feed.Len() != pool {
		t.Errorf("expected pool of %d, got %d", pool, g2.Feed.Len())
	}
	if len(g2.Roster.AIs()) != len(DefaultAIs()) {
		t.Errorf("expected AIs not duplicated, got %d", len(g2.Roster.AIs()))
	}
	if g2.Ledger.Len() != trades {
		t.Errorf("expected %d trades, got %d", trades, g2.Ledger.Len())
	}
	p, err := g2.Player(h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Offer.Equal(offer) || p.SessionID != string(sess.ID) || p.Position != res.Human.Position {
		t.Errorf("unexpected player after reload %+v", p)
	}
	active, ok := g2.Sessions.Active(h.ID)
	if !ok || active.ID != sess.ID || len(active.Released()) != 1 {
		t.Fatalf("expected active session %s with one release, got %+v", sess.ID, active)
	}
	st, err := g2.State(h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.News) != 1 || st.News[0].Message.ID != active.Released()[0].Message.ID {
		t.Errorf("expected the released message in state after reload, got %+v", st.News)
	}
	for _, before := range book {
		after, ok := g2.AIs.Quote(sess.ID, before.AIID)
		if !ok || after.FairValue == nil || !after.FairValue.Equal(*before.FairValue) {
			t.Errorf("expected %s fair value %s after replay, got %+v", before.Name, before.FairValue, after.FairValue)
		}
	}
}

func TestConcurrentPlayersKeepOwnValuations(t *testing.T) {
	g, c := newTestGame(t, nil)
	ctx := context.Background()
	alice, _, _ := g.Join(ctx, "alice")
	bob, _, _ := g.Join(ctx, "bob")

	if _, err := g.StartSession(ctx, alice.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := g.NextMessage(ctx, alice.ID); err != nil {
			t.Fatalf("release %d: unexpected error: %v", i+1, err)
		}
		c.Advance(20 * time.Second)
	}
	before := g.Book(alice.ID)

	if _, err := g.StartSession(ctx, bob.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := g.Sessions.Active(alice.ID); !ok {
		t.Fatal("expected alice's session to stay active")
	}

	after := g.Book(alice.ID)
	for i, q := range after {
		if !q.FairValue.Equal(*before[i].FairValue) {
			t.Errorf("expected %s fair value %s for alice, got %s", q.Name, before[i].FairValue, q.FairValue)
		}
	}
	for _, q := range g.Book(bob.ID) {
		if !q.FairValue.Equal(decimal.NewFromInt(70)) {
			t.Errorf("expected %s fair value 70 for bob, got %s", q.Name, q.FairValue)
		}
	}

	// bob's news moves only bob's AIs
	if _, err := g.NextMessage(ctx, bob.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, q := range g.Book(alice.ID) {
		if !q.FairValue.Equal(*before[i].FairValue) {
			t.Errorf("expected %s unchanged for alice, got %s", q.Name, q.FairValue)
		}
	}

	// finishing alice's session leaves bob's valuations in place
	if _, err := g.FinishSession(ctx, alice.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, q := range g.Book(alice.ID) {
		if q.Quoting() {
			t.Errorf("expected %s unquoted for idle alice, got %+v", q.Name, q)
		}
	}
	for _, q := range g.Book(bob.ID) {
		if !q.Quoting() {
			t.Errorf("expected %s still quoting for bob", q.Name)
		}
	}
}

func TestStateNewsFromView(t *testing.T) {
	g, c := newTestGame(t, nil)
	ctx := context.Background()
	h, _, _ := g.Join(ctx, "alice")
	if _, err := g.StartSession(ctx, h.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var released []news.MessageID
	for i := 0; i < 2; i++ {
		rel, err := g.NextMessage(ctx, h.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		released = append(released, rel.Message.ID)
		c.Advance(20 * time.Second)
	}

	if n := g.News.Count(); n != 2 {
		t.Errorf("expected 2 entries in the news view, got %d", n)
	}
	st, err := g.State(h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.News) != 2 {
		t.Fatalf("expected 2 released messages, got %d", len(st.News))
	}
	for i, r := range st.News {
		if r.Message.ID != released[i] {
			t.Errorf("expected message %s at %d, got %s", released[i], i, r.Message.ID)
		}
		if r.ReleasedAt.IsZero() {
			t.Errorf("expected release time on message %d", i)
		}
	}
}

func TestSyncUnknownPlayer(t *testing.T) {
	g, _ := newTestGame(t, nil)
	if _, err := g.Sync(context.Background(), trader.ID("ghost")); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("expected ErrUnknownPlayer, got %v", err)
	}
}
