package news

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// MessageID uniquely identifies a news message. ULIDs sort by creation time.
type MessageID string

// NewMessageID returns a fresh MessageID.
func NewMessageID() MessageID {
	return MessageID(ulid.Make().String())
}

// ImpactType is the direction a message pushes the price.
type ImpactType string

const (
	Bullish ImpactType = "bullish"
	Bearish ImpactType = "bearish"
)

// ParseImpactType accepts "bullish" or "bearish" in any case.
func ParseImpactType(s string) (ImpactType, error) {
	switch ImpactType(strings.ToLower(strings.TrimSpace(s))) {
	case Bullish:
		return Bullish, nil
	case Bearish:
		return Bearish, nil
	}
	return "", fmt.Errorf("unknown impact type %q", s)
}

// Message is an immutable piece of scripted news. Value is a percentage.
type Message struct {
	ID      MessageID
	Content string
	Impact  ImpactType
	Value   decimal.Decimal
}

// Apply moves price by Value percent in the message's direction. Other
// impact types leave the price unchanged.
func (m Message) Apply(price decimal.Decimal) decimal.Decimal {
	delta := price.Mul(m.Value).Div(decimal.NewFromInt(100))
	switch m.Impact {
	case Bullish:
		return price.Add(delta)
	case Bearish:
		return price.Sub(delta)
	default:
		return price
	}
}

// Release is a message slot inside a session. A zero ReleasedAt means the
// message has not been released yet.
type Release struct {
	Message    Message
	ReleasedAt time.Time
}

// Released reports whether the slot has been released.
func (r Release) Released() bool {
	return !r.ReleasedAt.IsZero()
}
