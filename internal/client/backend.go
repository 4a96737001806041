// Package client drives a game from a player's terminal, either in process or
// against a remote server.
package client

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/api"
	"github.com/zappabad/bargetrader/internal/market"
)

// Backend is what a player's terminal talks to. Every call after Join acts
// as the joined player.
type Backend interface {
	Join(ctx context.Context, name string) (api.PlayerJSON, error)
	StartSession(ctx context.Context) (api.SessionJSON, error)
	FinishSession(ctx context.Context) (api.SessionJSON, error)
	NextMessage(ctx context.Context) (api.ReleaseResponse, error)
	UpdateQuote(ctx context.Context, bid, offer *decimal.Decimal) (api.QuoteResponse, error)
	CreateTrade(ctx context.Context, ai string, side market.Side, price decimal.Decimal) (api.TradeResponse, error)
	State(ctx context.Context) (api.StateJSON, error)
	// Events streams the player's game events until ctx is done.
	Events(ctx context.Context) (<-chan api.EventJSON, error)
}

var (
	_ Backend = (*Client)(nil)
	_ Backend = (*Local)(nil)
)
