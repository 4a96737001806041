package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/game"
	"github.com/zappabad/bargetrader/internal/ledger"
	marketview "github.com/zappabad/bargetrader/internal/market/view"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/session"
	"github.com/zappabad/bargetrader/internal/trader"
)

type joinRequest struct {
	Name string `json:"name"`
}

type importRecord struct {
	Content     string      `json:"content"`
	ImpactType  string      `json:"impact_type"`
	ImpactValue json.Number `json:"impact_value"`
}

type PlayerJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Bid       decimal.Decimal `json:"bid"`
	Offer     decimal.Decimal `json:"offer"`
	SessionID string          `json:"session_id,omitempty"`
	Position  int64           `json:"position"`
	CashFlow  decimal.Decimal `json:"cash_flow"`
	Created   bool            `json:"created,omitempty"`
}

type AIJSON struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Style string           `json:"style"`
	Bid   *decimal.Decimal `json:"bid"`
	Offer *decimal.Decimal `json:"offer"`
}

type PartyJSON struct {
	Name string `json:"name"`
}

type TradeJSON struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Buyer     PartyJSON       `json:"buyer"`
	Seller    PartyJSON       `json:"seller"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
}

type MessageJSON struct {
	ID         string          `json:"id,omitempty"`
	Content    string          `json:"message_content"`
	Impact     string          `json:"impact_type"`
	Value      decimal.Decimal `json:"impact_value"`
	ReleasedAt *time.Time      `json:"released_at,omitempty"`
}

type SessionJSON struct {
	ID              string           `json:"id"`
	InitialPrice    decimal.Decimal  `json:"initial_price"`
	Active          bool             `json:"active"`
	CreatedAt       time.Time        `json:"created_at"`
	EndsAt          time.Time        `json:"ends_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	SettlementPrice *decimal.Decimal `json:"settlement_price,omitempty"`
	MessageCount    int              `json:"message_count"`
	ReleasedCount   int              `json:"released_count"`
}

type SummaryJSON struct {
	Position        int64           `json:"position"`
	CashFlow        decimal.Decimal `json:"cash_flow"`
	BuyTradesCount  int             `json:"buy_trades_count"`
	SellTradesCount int             `json:"sell_trades_count"`
}

type QuoteResponse struct {
	Status     string           `json:"status"`
	Bid        *decimal.Decimal `json:"bid,omitempty"`
	Offer      *decimal.Decimal `json:"offer,omitempty"`
	PlayerName string           `json:"player_name,omitempty"`
	Errors     []string         `json:"errors,omitempty"`
	Trades     []TradeJSON      `json:"trades,omitempty"`
}

type TradeResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message,omitempty"`
	Trade   *TradeJSON `json:"trade,omitempty"`
}

type ReleaseResponse struct {
	MessageJSON
	Trades []TradeJSON `json:"trades,omitempty"`
}

type StateJSON struct {
	Player       PlayerJSON    `json:"player"`
	Session      *SessionJSON  `json:"session,omitempty"`
	RetryAfterMS int64         `json:"retry_after_ms"`
	AIs          []AIJSON      `json:"ais"`
	News         []MessageJSON `json:"news"`
	Trades       []TradeJSON   `json:"trades"`
	Summary      SummaryJSON   `json:"summary"`
}

type ImportResponse struct {
	Imported int `json:"imported"`
}

// EventJSON is one websocket frame.
type EventJSON struct {
	Type       string           `json:"type"`
	Time       time.Time        `json:"time"`
	SessionID  string           `json:"session_id,omitempty"`
	Message    *MessageJSON     `json:"message,omitempty"`
	Trade      *TradeJSON       `json:"trade,omitempty"`
	AIs        []AIJSON         `json:"ais,omitempty"`
	Player     *PlayerJSON      `json:"player,omitempty"`
	Settlement *decimal.Decimal `json:"settlement_price,omitempty"`
}

// Namer resolves participant IDs to display names.
type Namer interface {
	Name(id trader.ID) string
}

func ToPlayer(h trader.Human) PlayerJSON {
	return PlayerJSON{
		ID:        string(h.ID),
		Name:      h.Name,
		Bid:       h.Bid,
		Offer:     h.Offer,
		SessionID: h.SessionID,
		Position:  h.Position,
		CashFlow:  h.CashFlow,
	}
}

// ToAIs renders the quote book with prices rounded to cents.
func ToAIs(book []marketview.Quote) []AIJSON {
	out := make([]AIJSON, len(book))
	for i, q := range book {
		out[i] = AIJSON{ID: string(q.AIID), Name: q.Name, Style: q.Style, Bid: round(q.Bid), Offer: round(q.Offer)}
	}
	return out
}

func round(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := d.Round(2)
	return &v
}

func ToTrade(t ledger.Trade, n Namer) TradeJSON {
	return TradeJSON{
		ID:        string(t.ID),
		SessionID: string(t.SessionID),
		Buyer:     PartyJSON{Name: n.Name(t.Buyer)},
		Seller:    PartyJSON{Name: n.Name(t.Seller)},
		Price:     t.Price,
		Quantity:  t.Quantity,
		CreatedAt: t.CreatedAt,
	}
}

func ToTrades(ts []ledger.Trade, n Namer) []TradeJSON {
	out := make([]TradeJSON, len(ts))
	for i, t := range ts {
		out[i] = ToTrade(t, n)
	}
	return out
}

func ToMessage(m news.Message, releasedAt time.Time) MessageJSON {
	out := MessageJSON{ID: string(m.ID), Content: m.Content, Impact: string(m.Impact), Value: m.Value}
	if !releasedAt.IsZero() {
		at := releasedAt
		out.ReleasedAt = &at
	}
	return out
}

func ToSession(s session.Session, roundLength time.Duration) SessionJSON {
	out := SessionJSON{
		ID:              string(s.ID),
		InitialPrice:    s.InitialPrice,
		Active:          s.Active,
		CreatedAt:       s.CreatedAt,
		EndsAt:          s.CreatedAt.Add(roundLength),
		SettlementPrice: s.SettlementPrice,
		MessageCount:    len(s.Messages),
		ReleasedCount:   len(s.Released()),
	}
	if !s.FinishedAt.IsZero() {
		at := s.FinishedAt
		out.FinishedAt = &at
	}
	return out
}

func ToSummary(s session.Summary) SummaryJSON {
	return SummaryJSON{
		Position:        s.Position,
		CashFlow:        s.CashFlow,
		BuyTradesCount:  s.BuyTradesCount,
		SellTradesCount: s.SellTradesCount,
	}
}

// ToState renders a player's view of the game.
func ToState(st game.State, roundLength time.Duration, n Namer) StateJSON {
	out := StateJSON{
		Player:       ToPlayer(st.Player),
		RetryAfterMS: st.RetryAfter.Milliseconds(),
		AIs:          ToAIs(st.Book),
		News:         make([]MessageJSON, len(st.News)),
		Trades:       ToTrades(st.Trades, n),
		Summary:      ToSummary(st.Summary),
	}
	if st.Session != nil {
		s := ToSession(*st.Session, roundLength)
		out.Session = &s
	}
	for i, r := range st.News {
		out.News[i] = ToMessage(r.Message, r.ReleasedAt)
	}
	return out
}

func ToEvent(ev game.Event, n Namer) EventJSON {
	out := EventJSON{
		Type:       ev.Type.String(),
		Time:       ev.Time,
		SessionID:  string(ev.SessionID),
		Settlement: ev.Settlement,
	}
	if ev.Message != nil {
		m := ToMessage(*ev.Message, ev.Time)
		out.Message = &m
	}
	if ev.Trade != nil {
		t := ToTrade(*ev.Trade, n)
		out.Trade = &t
	}
	if ev.Quotes != nil {
		out.AIs = ToAIs(ev.Quotes)
	}
	if ev.Human != nil {
		p := ToPlayer(*ev.Human)
		out.Player = &p
	}
	return out
}
