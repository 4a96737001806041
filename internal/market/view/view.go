package view

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/session"
	"github.com/zappabad/bargetrader/internal/trader"
)

// Quote is the public state of one AI counterparty in one session.
type Quote struct {
	AIID      trader.ID
	Name      string
	Style     string
	FairValue *decimal.Decimal
	Bid       *decimal.Decimal
	Offer     *decimal.Decimal
}

// Quoting reports whether the AI currently shows both sides.
func (q Quote) Quoting() bool {
	return q.Bid != nil && q.Offer != nil
}

// Quotes is one session's view of every AI.
type Quotes []Quote

// LowestOffer returns the lowest AI offer. AIs without an offer are ignored.
func (qs Quotes) LowestOffer() (decimal.Decimal, bool) {
	var best decimal.Decimal
	ok := false
	for _, q := range qs {
		if q.Offer == nil {
			continue
		}
		if !ok || q.Offer.LessThan(best) {
			best = *q.Offer
			ok = true
		}
	}
	return best, ok
}

// HighestBid returns the highest AI bid. AIs without a bid are ignored.
func (qs Quotes) HighestBid() (decimal.Decimal, bool) {
	var best decimal.Decimal
	ok := false
	for _, q := range qs {
		if q.Bid == nil {
			continue
		}
		if !ok || q.Bid.GreaterThan(best) {
			best = *q.Bid
			ok = true
		}
	}
	return best, ok
}

// Get returns the quote of one AI.
func (qs Quotes) Get(id trader.ID) (Quote, bool) {
	for _, q := range qs {
		if q.AIID == id {
			return q, true
		}
	}
	return Quote{}, false
}

// QuoteBook keeps the latest quote of every AI in every session. Each
// session sees its own valuations.
type QuoteBook struct {
	mu       sync.RWMutex
	ais      map[trader.ID]Quote
	order    []trader.ID
	sessions map[session.ID]map[trader.ID]Quote
}

// NewQuoteBook creates an empty QuoteBook.
func NewQuoteBook() *QuoteBook {
	return &QuoteBook{
		ais:      make(map[trader.ID]Quote),
		sessions: make(map[session.ID]map[trader.ID]Quote),
	}
}

// Register adds an AI without quotes. Sessions list AIs in registration order.
func (b *QuoteBook) Register(ai trader.AI) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.ais[ai.ID]; !ok {
		b.order = append(b.order, ai.ID)
	}
	b.ais[ai.ID] = Quote{AIID: ai.ID, Name: ai.Name, Style: ai.Style}
}

// Apply records the state of an AI within session sid.
func (b *QuoteBook) Apply(sid session.ID, ai trader.AI) {
	ai = ai.Clone()

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.ais[ai.ID]; !ok {
		b.order = append(b.order, ai.ID)
		b.ais[ai.ID] = Quote{AIID: ai.ID, Name: ai.Name, Style: ai.Style}
	}
	quotes, ok := b.sessions[sid]
	if !ok {
		quotes = make(map[trader.ID]Quote)
		b.sessions[sid] = quotes
	}
	quotes[ai.ID] = Quote{
		AIID:      ai.ID,
		Name:      ai.Name,
		Style:     ai.Style,
		FairValue: ai.FairValue,
		Bid:       ai.Bid,
		Offer:     ai.Offer,
	}
}

// Remove forgets one AI's quote in session sid. A session left without
// quotes is dropped.
func (b *QuoteBook) Remove(sid session.ID, id trader.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	quotes, ok := b.sessions[sid]
	if !ok {
		return
	}
	delete(quotes, id)
	if len(quotes) == 0 {
		delete(b.sessions, sid)
	}
}

// Session returns every registered AI as seen by session sid. AIs that hold
// no state in the session come back without quotes.
func (b *QuoteBook) Session(sid session.ID) Quotes {
	b.mu.RLock()
	defer b.mu.RUnlock()

	quotes := b.sessions[sid]
	out := make(Quotes, 0, len(b.order))
	for _, id := range b.order {
		if q, ok := quotes[id]; ok {
			out = append(out, q)
			continue
		}
		out = append(out, b.ais[id])
	}
	return out
}

// Sessions returns how many sessions currently hold quotes.
func (b *QuoteBook) Sessions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}
