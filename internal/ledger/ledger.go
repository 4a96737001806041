package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/session"
	"github.com/zappabad/bargetrader/internal/trader"
)

// Sink persists trades. A nil Sink keeps the ledger in memory only.
type Sink interface {
	InsertTrade(ctx context.Context, t Trade) error
}

// Ledger is the append-only trade store. Positions and cash flows are always
// derived from the trades, never stored independently.
type Ledger struct {
	cfg  Config
	sink Sink

	mu      sync.RWMutex
	trades  []Trade
	byParty map[trader.ID][]int
}

// New creates a Ledger. sink may be nil.
func New(cfg Config, sink Sink) *Ledger {
	if cfg.LotSize <= 0 {
		cfg.LotSize = DefaultConfig().LotSize
	}
	if cfg.Now == nil {
		cfg.Now = DefaultConfig().Now
	}
	return &Ledger{
		cfg:     cfg,
		sink:    sink,
		byParty: make(map[trader.ID][]int),
	}
}

// RecordTrade appends a trade. A non-positive qty records one lot. The trade
// is persisted before it becomes visible; on failure nothing changes.
func (l *Ledger) RecordTrade(ctx context.Context, buyer, seller trader.ID, price decimal.Decimal, qty int64, sid session.ID) (Trade, error) {
	if buyer == seller {
		return Trade{}, ErrSelfTrade
	}
	if qty <= 0 {
		qty = l.cfg.LotSize
	}

	t := Trade{
		ID:        NewTradeID(),
		SessionID: sid,
		Buyer:     buyer,
		Seller:    seller,
		Price:     price,
		Quantity:  qty,
		CreatedAt: l.cfg.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.InsertTrade(ctx, t); err != nil {
			return Trade{}, fmt.Errorf("persist trade: %w", err)
		}
	}
	l.appendLocked(t)

	log.Debug().
		Str("trade", string(t.ID)).
		Str("session", string(sid)).
		Str("buyer", string(buyer)).
		Str("seller", string(seller)).
		Str("price", price.String()).
		Int64("qty", qty).
		Msg("trade recorded")
	return t, nil
}

func (l *Ledger) appendLocked(t Trade) {
	idx := len(l.trades)
	l.trades = append(l.trades, t)
	l.byParty[t.Buyer] = append(l.byParty[t.Buyer], idx)
	l.byParty[t.Seller] = append(l.byParty[t.Seller], idx)
}

// Load appends previously persisted trades without writing them to the sink.
func (l *Ledger) Load(trades []Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range trades {
		l.appendLocked(t)
	}
}

// Snapshot aggregates a participant's trades. An empty sid covers all sessions.
func (l *Ledger) Snapshot(id trader.ID, sid session.ID) Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{CashFlow: decimal.Zero}
	for _, idx := range l.byParty[id] {
		t := l.trades[idx]
		if sid != "" && t.SessionID != sid {
			continue
		}
		if t.Buyer == id {
			snap.Position += t.Quantity
			snap.CashFlow = snap.CashFlow.Sub(t.Notional())
			snap.Buys++
		}
		if t.Seller == id {
			snap.Position -= t.Quantity
			snap.CashFlow = snap.CashFlow.Add(t.Notional())
			snap.Sells++
		}
	}
	return snap
}

// Position is total bought minus total sold.
func (l *Ledger) Position(id trader.ID, sid session.ID) int64 {
	return l.Snapshot(id, sid).Position
}

// CashFlow is sale proceeds minus purchase costs.
func (l *Ledger) CashFlow(id trader.ID, sid session.ID) decimal.Decimal {
	return l.Snapshot(id, sid).CashFlow
}

// Trades returns the trades of a session in recording order. An empty sid
// returns every trade.
func (l *Ledger) Trades(sid session.ID) []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Trade
	for _, t := range l.trades {
		if sid == "" || t.SessionID == sid {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of recorded trades.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Account binds a participant to the ledger.
func (l *Ledger) Account(p trader.Participant) Account {
	return Account{p: p, l: l}
}

// Account exposes the trading capability shared by humans and AIs.
type Account struct {
	p trader.Participant
	l *Ledger
}

func (a Account) ID() trader.ID { return a.p.ParticipantID() }

func (a Account) Name() string { return a.p.DisplayName() }

func (a Account) Position(sid session.ID) int64 { return a.l.Position(a.ID(), sid) }

func (a Account) CashFlow(sid session.ID) decimal.Decimal { return a.l.CashFlow(a.ID(), sid) }

// Snapshot aggregates the participant's trades. An empty sid covers all sessions.
func (a Account) Snapshot(sid session.ID) Snapshot { return a.l.Snapshot(a.ID(), sid) }
