package client

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/api"
	"github.com/zappabad/bargetrader/internal/game"
	"github.com/zappabad/bargetrader/internal/market"
	"github.com/zappabad/bargetrader/internal/trader"
)

// Local plays against a game running in the same process.
type Local struct {
	game *game.Game

	mu     sync.RWMutex
	player trader.ID
}

func NewLocal(g *game.Game) *Local {
	return &Local{game: g}
}

func (l *Local) id() (trader.ID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.player == "" {
		return "", ErrNotJoined
	}
	return l.player, nil
}

func (l *Local) Join(ctx context.Context, name string) (api.PlayerJSON, error) {
	h, created, err := l.game.Join(ctx, name)
	if err != nil {
		return api.PlayerJSON{}, err
	}
	l.mu.Lock()
	l.player = h.ID
	l.mu.Unlock()
	out := api.ToPlayer(h)
	out.Created = created
	return out, nil
}

func (l *Local) StartSession(ctx context.Context) (api.SessionJSON, error) {
	id, err := l.id()
	if err != nil {
		return api.SessionJSON{}, err
	}
	s, err := l.game.StartSession(ctx, id)
	if err != nil {
		return api.SessionJSON{}, err
	}
	return api.ToSession(s, l.game.RoundLength()), nil
}

func (l *Local) FinishSession(ctx context.Context) (api.SessionJSON, error) {
	id, err := l.id()
	if err != nil {
		return api.SessionJSON{}, err
	}
	s, err := l.game.FinishSession(ctx, id)
	if err != nil {
		return api.SessionJSON{}, err
	}
	return api.ToSession(s, l.game.RoundLength()), nil
}

func (l *Local) NextMessage(ctx context.Context) (api.ReleaseResponse, error) {
	id, err := l.id()
	if err != nil {
		return api.ReleaseResponse{}, err
	}
	rel, err := l.game.NextMessage(ctx, id)
	if err != nil {
		return api.ReleaseResponse{}, err
	}
	return api.ReleaseResponse{
		MessageJSON: api.ToMessage(rel.Message, time.Time{}),
		Trades:      api.ToTrades(rel.Trades, l.game),
	}, nil
}

func (l *Local) UpdateQuote(ctx context.Context, bid, offer *decimal.Decimal) (api.QuoteResponse, error) {
	id, err := l.id()
	if err != nil {
		return api.QuoteResponse{}, err
	}
	res, err := l.game.UpdateQuote(ctx, id, market.QuoteUpdate{Bid: bid, Offer: offer})
	if err != nil {
		return api.QuoteResponse{}, err
	}
	return api.QuoteResponse{
		Status:     "success",
		Bid:        bid,
		Offer:      offer,
		PlayerName: res.Human.Name,
		Trades:     api.ToTrades(res.Trades, l.game),
	}, nil
}

func (l *Local) CreateTrade(ctx context.Context, ai string, side market.Side, price decimal.Decimal) (api.TradeResponse, error) {
	id, err := l.id()
	if err != nil {
		return api.TradeResponse{}, err
	}
	t, err := l.game.Execute(ctx, id, trader.ID(ai), side, &price)
	if err != nil {
		return api.TradeResponse{}, err
	}
	tj := api.ToTrade(t, l.game)
	return api.TradeResponse{Status: "success", Trade: &tj}, nil
}

func (l *Local) State(ctx context.Context) (api.StateJSON, error) {
	id, err := l.id()
	if err != nil {
		return api.StateJSON{}, err
	}
	st, err := l.game.State(id)
	if err != nil {
		return api.StateJSON{}, err
	}
	return api.ToState(st, l.game.RoundLength(), l.game), nil
}

// Events consumes the game's event channel, so only one Local per game
// should call it.
func (l *Local) Events(ctx context.Context) (<-chan api.EventJSON, error) {
	id, err := l.id()
	if err != nil {
		return nil, err
	}
	src := l.game.Events()
	out := make(chan api.EventJSON, cap(src))
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-src:
				if !ok {
					return
				}
				if ev.Player != "" && ev.Player != id {
					continue
				}
				select {
				case out <- api.ToEvent(ev, l.game):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
