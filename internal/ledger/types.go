package ledger

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/session"
	"github.com/zappabad/bargetrader/internal/trader"
)

// ErrSelfTrade is returned when buyer and seller are the same participant.
var ErrSelfTrade = errors.New("buyer and seller cannot be the same participant")

// TradeID uniquely identifies a trade. ULIDs sort by creation time.
type TradeID string

// NewTradeID returns a fresh TradeID.
func NewTradeID() TradeID {
	return TradeID(ulid.Make().String())
}

// Trade is an immutable record of one bilateral execution.
type Trade struct {
	ID        TradeID
	SessionID session.ID
	Buyer     trader.ID
	Seller    trader.ID
	Price     decimal.Decimal
	Quantity  int64
	CreatedAt time.Time
}

// Notional returns price × quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// Snapshot is a participant's aggregate standing.
type Snapshot struct {
	Position int64
	CashFlow decimal.Decimal
	Buys     int
	Sells    int
}
