package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds configuration for the session service.
type Config struct {
	// InitialPrice is the opening price of a session started by a player.
	InitialPrice decimal.Decimal
	// PoolSize is how many messages each session draws.
	PoolSize int
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		InitialPrice: decimal.NewFromInt(70),
		PoolSize:     8,
		Now:          time.Now,
	}
}
