package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/counterparty/core"
	cpservice "github.com/zappabad/bargetrader/internal/counterparty/service"
	"github.com/zappabad/bargetrader/internal/ledger"
	"github.com/zappabad/bargetrader/internal/market"
	marketview "github.com/zappabad/bargetrader/internal/market/view"
	"github.com/zappabad/bargetrader/internal/news/feed"
	"github.com/zappabad/bargetrader/internal/session"
	"github.com/zappabad/bargetrader/internal/trader"
)

var (
	ErrUnknownPlayer = errors.New("unknown player")
	ErrNoSession     = feed.ErrNoSession
	ErrNotInSession  = errors.New("ai is not part of the player's session")
)

// Sessions resolves a player's active session.
type Sessions interface {
	Active(player trader.ID) (session.Session, bool)
}

// Counterparties is the AI side of the market. *cpservice.Service satisfies it.
type Counterparties interface {
	Quotes(sid session.ID) marketview.Quotes
	Decide(ctx context.Context, id trader.ID, h trader.Human, active bool, sid session.ID) (cpservice.Result, error)
	Execute(ctx context.Context, id trader.ID, h trader.Human, side market.Side, expected *decimal.Decimal, sid session.ID) (ledger.Trade, error)
}

// HumanStore persists player quotes. A nil HumanStore keeps them in memory.
type HumanStore interface {
	SaveHuman(ctx context.Context, h trader.Human) error
}

// MarketService is where players meet the AIs: quote validation, quote
// updates and trade execution.
type MarketService struct {
	cfg      Config
	roster   *trader.Roster
	ais      Counterparties
	sessions Sessions
	store    HumanStore

	// serializes quote updates so validation and apply are one step
	mu sync.Mutex
}

// NewMarketService creates a MarketService. store may be nil.
func NewMarketService(cfg Config, roster *trader.Roster, ais Counterparties, sessions Sessions, store HumanStore) *MarketService {
	if cfg.Commodity.LotSize <= 0 {
		cfg.Commodity = DefaultConfig().Commodity
	}
	return &MarketService{
		cfg:      cfg,
		roster:   roster,
		ais:      ais,
		sessions: sessions,
		store:    store,
	}
}

// Commodity returns the traded instrument.
func (s *MarketService) Commodity() market.Commodity {
	return s.cfg.Commodity
}

// Book returns every AI as seen by the player's active session. An idle
// player sees the AIs without quotes.
func (s *MarketService) Book(player trader.ID) marketview.Quotes {
	var sid session.ID
	if sess, ok := s.sessions.Active(player); ok {
		sid = sess.ID
	}
	return s.ais.Quotes(sid)
}

// UpdateQuote validates a partial bid/offer update against the AI quotes and
// applies it. Nothing changes when validation fails.
func (s *MarketService) UpdateQuote(ctx context.Context, player trader.ID, u market.QuoteUpdate) (trader.Human, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.roster.Human(player)
	if !ok {
		return trader.Human{}, ErrUnknownPlayer
	}
	if err := market.Validate(u, s.Book(player), s.cfg.Commodity); err != nil {
		return trader.Human{}, err
	}

	if u.Bid != nil {
		h.Bid = *u.Bid
	}
	if u.Offer != nil {
		h.Offer = *u.Offer
	}
	if s.store != nil {
		if err := s.store.SaveHuman(ctx, h); err != nil {
			return trader.Human{}, fmt.Errorf("persist quote: %w", err)
		}
	}
	return s.roster.UpdateHuman(player, func(stored *trader.Human) {
		stored.Bid = h.Bid
		stored.Offer = h.Offer
	})
}

// Respond asks every AI in the player's active session whether it wants to
// trade against the player's quote, and records the trades that happen.
func (s *MarketService) Respond(ctx context.Context, player trader.ID) ([]ledger.Trade, error) {
	h, ok := s.roster.Human(player)
	if !ok {
		return nil, ErrUnknownPlayer
	}
	sess, active := s.sessions.Active(player)
	if !active {
		return nil, nil
	}

	var trades []ledger.Trade
	for _, id := range sess.AIs {
		res, err := s.ais.Decide(ctx, id, h, true, sess.ID)
		if err != nil {
			return trades, fmt.Errorf("ai %s: %w", id, err)
		}
		if res.Decision.Outcome != core.OutcomeTrade || res.Trade == nil {
			continue
		}
		trades = append(trades, *res.Trade)
		log.Info().
			Str("session", string(sess.ID)).
			Str("ai", string(id)).
			Str("ai_side", res.Decision.Side.String()).
			Str("price", res.Trade.Price.String()).
			Msg("ai traded against player quote")
	}
	return trades, nil
}

// Execute trades the player against an AI's current quote: buying lifts the
// AI offer, selling hits the AI bid. A non-nil expected price guards against
// a quote that moved since the player saw it.
func (s *MarketService) Execute(ctx context.Context, player, ai trader.ID, side market.Side, expected *decimal.Decimal) (ledger.Trade, error) {
	h, ok := s.roster.Human(player)
	if !ok {
		return ledger.Trade{}, ErrUnknownPlayer
	}
	sess, active := s.sessions.Active(player)
	if !active {
		return ledger.Trade{}, ErrNoSession
	}
	if !containsID(sess.AIs, ai) {
		return ledger.Trade{}, ErrNotInSession
	}
	return s.ais.Execute(ctx, ai, h, side, expected, sess.ID)
}

func containsID(ids []trader.ID, id trader.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
