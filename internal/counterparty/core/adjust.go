package core

import (
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/news"
)

// Adjustment returns the fractional fair-value move a message causes.
type Adjustment func(news.Message) decimal.Decimal

// DefaultAdjustment is the fixed 5% move.
var DefaultAdjustment = FixedAdjustment(decimal.RequireFromString("0.05"))

// FixedAdjustment moves fair value by rate regardless of the message's
// impact value.
func FixedAdjustment(rate decimal.Decimal) Adjustment {
	return func(news.Message) decimal.Decimal { return rate }
}

// ImpactAdjustment moves fair value by the message's own impact percentage.
func ImpactAdjustment(m news.Message) decimal.Decimal {
	return m.Value.Div(decimal.NewFromInt(100))
}
