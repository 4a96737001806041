package service

import (
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/counterparty/core"
)

// Config holds configuration for the counterparty service.
type Config struct {
	// CommandBuffer is the size of each AI's inbound command channel.
	CommandBuffer int
	// Adjustment is how far a message moves fair value.
	Adjustment core.Adjustment
	// Uncertainty is the half-width of each AI's quote around fair value.
	Uncertainty decimal.Decimal
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		CommandBuffer: 64,
		Adjustment:    core.DefaultAdjustment,
		Uncertainty:   core.DefaultUncertainty,
	}
}
