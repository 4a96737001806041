package feed

import (
	"math/rand"
	"time"
)

// Rand is the randomness the feed needs. *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Config holds configuration for the news feed.
type Config struct {
	// MinInterval is the minimum spacing between two releases in a session.
	MinInterval time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Rand drives sampling and release order. Defaults to a time-seeded source.
	Rand Rand
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MinInterval: 20 * time.Second,
		Now:         time.Now,
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}
