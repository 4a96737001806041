package market

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Commodity describes the single instrument the game trades.
type Commodity struct {
	Name     string
	Unit     string
	Currency string
	LotSize  int64
	Decimals int32
}

// Barge is the default commodity: barge freight quoted in USD per metric tonne.
var Barge = Commodity{
	Name:     "Barge Freight",
	Unit:     "metric tonne",
	Currency: "USD",
	LotSize:  2000,
	Decimals: 2,
}

// FormatPrice renders a price with the commodity's decimals.
func (c Commodity) FormatPrice(p decimal.Decimal) string {
	return p.StringFixed(c.Decimals)
}

// Side is the direction of a trade from the point of view of the acting participant.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide accepts "buy" or "sell" in any case.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, true
	case "sell":
		return SideSell, true
	}
	return 0, false
}

// QuoteUpdate is a partial bid/offer update. Nil fields are left untouched.
type QuoteUpdate struct {
	Bid   *decimal.Decimal
	Offer *decimal.Decimal
}

// Empty reports whether the update carries neither side.
func (u QuoteUpdate) Empty() bool {
	return u.Bid == nil && u.Offer == nil
}
