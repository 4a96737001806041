package core

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/market"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/trader"
)

// ErrNotAttached is returned when an AI has no fair value yet.
var ErrNotAttached = errors.New("ai is not attached to a session")

// DefaultUncertainty is the half-width of the AI's quote around fair value.
var DefaultUncertainty = decimal.RequireFromString("0.10")

// Outcome is the result category of a trade decision.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeNoOpportunity
	OutcomeTrade
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeNoOpportunity:
		return "no_opportunity_to_trade"
	case OutcomeTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// Decision is what an AI wants to do against a player's quote. Side is the
// AI's side of the trade.
type Decision struct {
	Outcome Outcome
	Side    market.Side
	Price   decimal.Decimal
}

// Engine holds the valuation rules. It is deterministic and not safe for
// concurrent mutation of the same AI; callers serialize per AI.
type Engine struct {
	adjust      Adjustment
	uncertainty decimal.Decimal
}

// NewEngine creates an Engine. A nil adjust uses DefaultAdjustment, a
// non-positive uncertainty uses DefaultUncertainty.
func NewEngine(adjust Adjustment, uncertainty decimal.Decimal) *Engine {
	if adjust == nil {
		adjust = DefaultAdjustment
	}
	if !uncertainty.IsPositive() {
		uncertainty = DefaultUncertainty
	}
	return &Engine{adjust: adjust, uncertainty: uncertainty}
}

// Quote returns bid and offer around fair value fv.
func (e *Engine) Quote(fv decimal.Decimal) (bid, offer decimal.Decimal) {
	one := decimal.NewFromInt(1)
	return fv.Mul(one.Sub(e.uncertainty)), fv.Mul(one.Add(e.uncertainty))
}

// Attach seeds the AI's fair value with the session's initial price and
// refreshes its quotes.
func (e *Engine) Attach(ai *trader.AI, initialPrice decimal.Decimal) {
	fv := initialPrice
	ai.FairValue = &fv
	e.requote(ai)
}

// ApplyMessage moves the AI's fair value in the message's direction and
// refreshes its quotes. Non-directional messages leave it unchanged.
func (e *Engine) ApplyMessage(ai *trader.AI, m news.Message) (decimal.Decimal, error) {
	if ai.FairValue == nil {
		return decimal.Zero, ErrNotAttached
	}

	one := decimal.NewFromInt(1)
	fv := *ai.FairValue
	switch m.Impact {
	case news.Bullish:
		fv = fv.Mul(one.Add(e.adjust(m)))
	case news.Bearish:
		fv = fv.Mul(one.Sub(e.adjust(m)))
	}
	ai.FairValue = &fv
	e.requote(ai)
	return fv, nil
}

func (e *Engine) requote(ai *trader.AI) {
	bid, offer := e.Quote(*ai.FairValue)
	ai.Bid = &bid
	ai.Offer = &offer
}

// DecideTrade checks the player's quote against the AI's fair value. The AI
// buys at the player's offer when fair value is above it, otherwise sells at
// the player's bid when fair value is below it. A zero side is not quoted.
func (e *Engine) DecideTrade(ai trader.AI, h trader.Human, active bool) Decision {
	if !active {
		return Decision{Outcome: OutcomeNone}
	}
	if !h.Quoting() || ai.FairValue == nil {
		return Decision{Outcome: OutcomeNoOpportunity}
	}

	fv := *ai.FairValue
	if h.Offer.IsPositive() && fv.GreaterThan(h.Offer) {
		return Decision{Outcome: OutcomeTrade, Side: market.SideBuy, Price: h.Offer}
	}
	if h.Bid.IsPositive() && fv.LessThan(h.Bid) {
		return Decision{Outcome: OutcomeTrade, Side: market.SideSell, Price: h.Bid}
	}
	return Decision{Outcome: OutcomeNoOpportunity}
}
