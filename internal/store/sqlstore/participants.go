package sqlstore

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/trader"
)

func (s *Store) saveParticipant(ctx context.Context, id trader.ID, kind trader.Kind, name, style string, bid, offer decimal.Decimal, sid string, position int64, cashFlow decimal.Decimal) error {
	q := s.d.upsert("participants", []string{"id"},
		"kind", "name", "style", "bid", "offer", "session_id", "position", "cash_flow")
	_, err := s.db.ExecContext(ctx, q, id, kind.String(), name, style, bid, offer, sid, position, cashFlow)
	return err
}

// SaveHuman inserts or updates a player.
func (s *Store) SaveHuman(ctx context.Context, h trader.Human) error {
	if err := s.saveParticipant(ctx, h.ID, trader.KindHuman, h.Name, "", h.Bid, h.Offer, h.SessionID, h.Position, h.CashFlow); err != nil {
		return fmt.Errorf("save human: %w", err)
	}
	return nil
}

// SaveAI inserts or updates an AI's identity. Fair value and quotes are
// derived per session and not stored.
func (s *Store) SaveAI(ctx context.Context, a trader.AI) error {
	if err := s.saveParticipant(ctx, a.ID, trader.KindAI, a.Name, a.Style, decimal.Zero, decimal.Zero, "", 0, decimal.Zero); err != nil {
		return fmt.Errorf("save ai: %w", err)
	}
	return nil
}

// Humans returns every stored player.
func (s *Store) Humans(ctx context.Context) ([]trader.Human, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, bid, offer, session_id, position, cash_flow
FROM participants
WHERE kind = ?
ORDER BY name
`, trader.KindHuman.String())
	if err != nil {
		return nil, fmt.Errorf("query humans: %w", err)
	}
	defer rows.Close()

	var out []trader.Human
	for rows.Next() {
		var h trader.Human
		if err := rows.Scan(&h.ID, &h.Name, &h.Bid, &h.Offer, &h.SessionID, &h.Position, &h.CashFlow); err != nil {
			return nil, fmt.Errorf("scan human: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// AIs returns every stored AI identity.
func (s *Store) AIs(ctx context.Context) ([]trader.AI, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, style
FROM participants
WHERE kind = ?
ORDER BY name
`, trader.KindAI.String())
	if err != nil {
		return nil, fmt.Errorf("query ais: %w", err)
	}
	defer rows.Close()

	var out []trader.AI
	for rows.Next() {
		var a trader.AI
		if err := rows.Scan(&a.ID, &a.Name, &a.Style); err != nil {
			return nil, fmt.Errorf("scan ai: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
