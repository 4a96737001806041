package session

import (
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/trader"
)

// ID uniquely identifies a session. ULIDs sort by creation time.
type ID string

// NewID returns a fresh session ID.
func NewID() ID {
	return ID(ulid.Make().String())
}

// Session is one round of the game.
type Session struct {
	ID              ID
	InitialPrice    decimal.Decimal
	Active          bool
	CreatedAt       time.Time
	FinishedAt      time.Time
	SettlementPrice *decimal.Decimal
	Messages        []news.Release
	Players         []trader.ID
	AIs             []trader.ID
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	if s.SettlementPrice != nil {
		p := *s.SettlementPrice
		out.SettlementPrice = &p
	}
	out.Messages = append([]news.Release(nil), s.Messages...)
	out.Players = append([]trader.ID(nil), s.Players...)
	out.AIs = append([]trader.ID(nil), s.AIs...)
	return out
}

// LastReleasedAt returns the most recent release time, or zero.
func (s Session) LastReleasedAt() time.Time {
	var last time.Time
	for _, r := range s.Messages {
		if r.ReleasedAt.After(last) {
			last = r.ReleasedAt
		}
	}
	return last
}

// Unreleased returns the indexes of the slots not yet released.
func (s Session) Unreleased() []int {
	var idx []int
	for i, r := range s.Messages {
		if !r.Released() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Released returns the released slots in release order.
func (s Session) Released() []news.Release {
	var out []news.Release
	for _, r := range s.Messages {
		if r.Released() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReleasedAt.Before(out[j].ReleasedAt)
	})
	return out
}

// HasPlayer reports whether id is a member of the session.
func (s Session) HasPlayer(id trader.ID) bool {
	for _, p := range s.Players {
		if p == id {
			return true
		}
	}
	return false
}

// Settle replays every message, released or not, in stored order on top of
// the initial price and rounds to cents.
func (s Session) Settle() decimal.Decimal {
	price := s.InitialPrice
	for _, r := range s.Messages {
		price = r.Message.Apply(price)
	}
	return price.Round(2)
}

// Summary is a player's standing within a session.
type Summary struct {
	Position        int64
	CashFlow        decimal.Decimal
	BuyTradesCount  int
	SellTradesCount int
}
