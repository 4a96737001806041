package ledger

import "time"

// Config holds configuration for the ledger.
type Config struct {
	// LotSize is the quantity used when a trade is recorded without one.
	LotSize int64
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		LotSize: 2000,
		Now:     time.Now,
	}
}
