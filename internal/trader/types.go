package trader

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ID uniquely identifies a participant.
type ID string

// NewID returns a fresh random participant ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// Kind distinguishes human players from AI counterparties.
type Kind uint8

const (
	KindHuman Kind = iota
	KindAI
)

func (k Kind) String() string {
	switch k {
	case KindHuman:
		return "human"
	case KindAI:
		return "ai"
	default:
		return "unknown"
	}
}

// Participant is anything that can appear on either side of a trade.
type Participant interface {
	ParticipantID() ID
	DisplayName() string
	Kind() Kind
}

// Human is a player. Zero Bid or Offer means that side is not quoted.
type Human struct {
	ID    ID
	Name  string
	Bid   decimal.Decimal
	Offer decimal.Decimal

	// SessionID is the player's active session, empty when idle.
	SessionID string

	// Snapshot fields, refreshed from the ledger.
	Position int64
	CashFlow decimal.Decimal
}

func (h Human) ParticipantID() ID   { return h.ID }
func (h Human) DisplayName() string { return h.Name }
func (h Human) Kind() Kind          { return KindHuman }

// Quoting reports whether the player has at least one side quoted.
func (h Human) Quoting() bool {
	return !h.Bid.IsZero() || !h.Offer.IsZero()
}

// AI is a counterparty. FairValue, Bid and Offer stay nil until the AI is
// attached to a session.
type AI struct {
	ID        ID
	Name      string
	Style     string
	FairValue *decimal.Decimal
	Bid       *decimal.Decimal
	Offer     *decimal.Decimal
}

func (a AI) ParticipantID() ID   { return a.ID }
func (a AI) DisplayName() string { return a.Name }
func (a AI) Kind() Kind          { return KindAI }

// Clone returns a copy that shares no pointers with a.
func (a AI) Clone() AI {
	out := a
	out.FairValue = clonePtr(a.FairValue)
	out.Bid = clonePtr(a.Bid)
	out.Offer = clonePtr(a.Offer)
	return out
}

func clonePtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
