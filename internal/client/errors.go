package client

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zappabad/bargetrader/internal/game"
	"github.com/zappabad/bargetrader/internal/market"
	"github.com/zappabad/bargetrader/internal/news/feed"
)

// ErrNotJoined is returned by player calls made before Join.
var ErrNotJoined = errors.New("join the game first")

// APIError is a non-2xx response from the server. It matches the game's
// sentinel errors by message so callers can use errors.Is on either backend.
type APIError struct {
	Status     int
	Message    string
	Errors     []string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return strings.Join(e.Errors, " ")
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

var remoteErrors = []error{
	feed.ErrTooSoon,
	feed.ErrExhausted,
	feed.ErrNoSession,
	feed.ErrInsufficientData,
	market.ErrStaleQuote,
	game.ErrUnknownPlayer,
	game.ErrUnknownAI,
	game.ErrInvalidName,
}

func (e *APIError) Is(target error) bool {
	if target == market.ErrValidation {
		return len(e.Errors) > 0
	}
	for _, known := range remoteErrors {
		if target == known && strings.Contains(e.Message, known.Error()) {
			return true
		}
	}
	return false
}

// RetryAfter reports how long to wait before asking for the next message
// again, and whether err was a too-soon rejection at all.
func RetryAfter(err error) (time.Duration, bool) {
	var soon *feed.TooSoonError
	if errors.As(err, &soon) {
		return soon.Wait, true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && errors.Is(apiErr, feed.ErrTooSoon) {
		return apiErr.RetryAfter, true
	}
	return 0, false
}
