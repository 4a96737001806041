package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/counterparty/core"
	"github.com/zappabad/bargetrader/internal/ledger"
	"github.com/zappabad/bargetrader/internal/market"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/trader"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T) (*Service, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(ledger.DefaultConfig(), nil)
	svc := NewService(DefaultConfig(), l)
	t.Cleanup(svc.Close)
	svc.Register(trader.AI{ID: "ai", Name: "Conservative Carl", Style: "conservative"})
	return svc, l
}

func TestServiceAttachAndApply(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "ai", "s1", news.Message{Impact: news.Bullish}); !errors.Is(err, core.ErrNotAttached) {
		t.Fatalf("expected ErrNotAttached before attach, got %v", err)
	}

	ai, err := svc.Attach(ctx, "ai", "s1", d("70"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ai.FairValue.Equal(d("70")) {
		t.Errorf("expected fair value 70, got %s", ai.FairValue)
	}

	ai, err = svc.Apply(ctx, "ai", "s1", news.Message{Impact: news.Bullish, Value: d("3")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ai.FairValue.Equal(d("73.5")) {
		t.Errorf("expected fair value 73.5, got %s", ai.FairValue)
	}

	q, ok := svc.Quote("s1", "ai")
	if !ok {
		t.Fatal("expected quote in book")
	}
	if !q.Offer.Equal(d("80.85")) {
		t.Errorf("expected offer 80.85, got %s", q.Offer)
	}
}

func TestServiceDecideRecordsTrade(t *testing.T) {
	svc, l := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Attach(ctx, "ai", "s1", d("110")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := trader.Human{ID: "p", Name: "alice", Bid: d("100"), Offer: d("105")}
	res, err := svc.Decide(ctx, "ai", h, true, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision.Outcome != core.OutcomeTrade {
		t.Fatalf("expected trade, got %s", res.Decision.Outcome)
	}
	if res.Trade == nil || res.Trade.Buyer != "ai" || res.Trade.Seller != "p" {
		t.Fatalf("expected ai to buy from p, got %+v", res.Trade)
	}
	if !res.Trade.Price.Equal(d("105")) {
		t.Errorf("expected price 105, got %s", res.Trade.Price)
	}
	if pos := l.Position("p", "s1"); pos != -2000 {
		t.Errorf("expected player position -2000, got %d", pos)
	}

	res, err = svc.Decide(ctx, "ai", h, false, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision.Outcome != core.OutcomeNone || res.Trade != nil {
		t.Errorf("expected none without a session, got %+v", res)
	}
}

func TestServiceExecute(t *testing.T) {
	svc, l := newTestService(t)
	ctx := context.Background()
	h := trader.Human{ID: "p", Name: "alice"}

	if _, err := svc.Execute(ctx, "ai", h, market.SideBuy, nil, "s1"); !errors.Is(err, ErrNotQuoting) {
		t.Fatalf("expected ErrNotQuoting, got %v", err)
	}

	svc.Attach(ctx, "ai", "s1", d("70"))

	tr, err := svc.Execute(ctx, "ai", h, market.SideBuy, nil, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Buyer != "p" || !tr.Price.Equal(d("77")) {
		t.Errorf("expected p to lift 77, got %+v", tr)
	}

	stale := d("76.50")
	if _, err := svc.Execute(ctx, "ai", h, market.SideSell, &stale, "s1"); !errors.Is(err, ErrStaleQuote) {
		t.Fatalf("expected ErrStaleQuote, got %v", err)
	}

	current := d("63.00")
	tr, err = svc.Execute(ctx, "ai", h, market.SideSell, &current, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Seller != "p" {
		t.Errorf("expected p to sell, got %+v", tr)
	}
	if l.Len() != 2 {
		t.Errorf("expected 2 trades, got %d", l.Len())
	}
}

func TestServiceUnknownAI(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Attach(context.Background(), "ghost", "s1", d("70")); !errors.Is(err, ErrUnknownAI) {
		t.Errorf("expected ErrUnknownAI, got %v", err)
	}
}

func TestServiceConcurrentApply(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.Attach(ctx, "ai", "s1", d("100"))

	var wg sync.WaitGroup
	n := 50
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := svc.Apply(ctx, "ai", "s1", news.Message{Impact: news.Bullish}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.Apply(ctx, "ai", "s1", news.Message{Impact: news.Bearish}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	want := d("100")
	for i := 0; i < n; i++ {
		want = want.Mul(d("1.05")).Mul(d("0.95"))
	}
	q, _ := svc.Quote("s1", "ai")
	if !q.FairValue.Equal(want) {
		t.Errorf("expected %s, got %s", want, q.FairValue)
	}
}

func TestServiceContextCanceled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Attach(ctx, "ai", "s1", d("70")); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestServiceSessionsAreIndependent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Attach(ctx, "ai", "s1", d("70")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Apply(ctx, "ai", "s1", news.Message{Impact: news.Bearish}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := svc.Attach(ctx, "ai", "s2", d("70")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q1, _ := svc.Quote("s1", "ai")
	if !q1.FairValue.Equal(d("60.01625")) {
		t.Errorf("expected s1 fair value 60.01625, got %s", q1.FairValue)
	}
	q2, _ := svc.Quote("s2", "ai")
	if !q2.FairValue.Equal(d("70")) {
		t.Errorf("expected s2 fair value 70, got %s", q2.FairValue)
	}

	// a player quote marketable only against s1's lower valuation
	h := trader.Human{ID: "p", Name: "alice", Bid: d("65"), Offer: d("75")}
	res, err := svc.Decide(ctx, "ai", h, true, "s2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision.Outcome != core.OutcomeNoOpportunity {
		t.Errorf("expected no trade in s2, got %s", res.Decision.Outcome)
	}
	res, err = svc.Decide(ctx, "ai", h, true, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision.Outcome != core.OutcomeTrade || res.Decision.Side != market.SideSell {
		t.Errorf("expected ai to sell in s1, got %+v", res.Decision)
	}
}

func TestServiceDetach(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.Attach(ctx, "ai", "s1", d("70"))
	if err := svc.Detach(ctx, "ai", "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Apply(ctx, "ai", "s1", news.Message{Impact: news.Bullish}); !errors.Is(err, core.ErrNotAttached) {
		t.Errorf("expected ErrNotAttached after detach, got %v", err)
	}
	q, ok := svc.Quote("s1", "ai")
	if !ok || q.Quoting() {
		t.Errorf("expected unquoted ai after detach, got %+v", q)
	}
	if n := len(svc.Quotes("s1")); n != 1 {
		t.Errorf("expected 1 ai listed, got %d", n)
	}
}
