package game

import (
	"time"

	cpservice "github.com/zappabad/bargetrader/internal/counterparty/service"
	"github.com/zappabad/bargetrader/internal/ledger"
	marketservice "github.com/zappabad/bargetrader/internal/market/service"
	"github.com/zappabad/bargetrader/internal/news/feed"
	sessionservice "github.com/zappabad/bargetrader/internal/session/service"
	"github.com/zappabad/bargetrader/internal/trader"
)

// Config holds configuration for the game.
type Config struct {
	// AIs is the counterparty roster. Missing AIs are created on startup,
	// matched by name.
	AIs []trader.AI
	// RoundLength is how long a player's round lasts on the client clock.
	RoundLength time.Duration
	// SeedNews loads the embedded message pool when the feed is empty.
	SeedNews bool

	Market       marketservice.Config
	Feed         feed.Config
	Ledger       ledger.Config
	Counterparty cpservice.Config
	Session      sessionservice.Config

	// NewsTapeSize is the capacity of the released news ring buffer.
	NewsTapeSize int
	// EventBuffer is the size of the internal event channel.
	EventBuffer int
	// ExternalEventBuffer is the size of the external events channel.
	ExternalEventBuffer int
	// DropExternalEvents determines whether external event channel drops on overflow.
	DropExternalEvents bool
}

// DefaultAIs is the stock counterparty roster.
func DefaultAIs() []trader.AI {
	return []trader.AI{
		{Name: "Carl", Style: "conservative"},
		{Name: "Ava", Style: "aggressive"},
		{Name: "Max", Style: "momentum"},
	}
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		AIs:                 DefaultAIs(),
		RoundLength:         3 * time.Minute,
		SeedNews:            true,
		Market:              marketservice.DefaultConfig(),
		Feed:                feed.DefaultConfig(),
		Ledger:              ledger.DefaultConfig(),
		Counterparty:        cpservice.DefaultConfig(),
		Session:             sessionservice.DefaultConfig(),
		NewsTapeSize:        100,
		EventBuffer:         256,
		ExternalEventBuffer: 256,
		DropExternalEvents:  true,
	}
}
