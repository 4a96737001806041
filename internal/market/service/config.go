package service

import "github.com/zappabad/bargetrader/internal/market"

// Config holds configuration for the market service.
type Config struct {
	// Commodity is the traded instrument.
	Commodity market.Commodity
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Commodity: market.Barge,
	}
}
