package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/zappabad/bargetrader/internal/ledger"
)

// InsertTrade appends a trade.
func (s *Store) InsertTrade(ctx context.Context, t ledger.Trade) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO trades (id, session_id, buyer, seller, price, quantity, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, t.ID, t.SessionID, t.Buyer, t.Seller, t.Price, t.Quantity, t.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Trades returns every trade oldest first.
func (s *Store) Trades(ctx context.Context) ([]ledger.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, buyer, seller, price, quantity, created_at
FROM trades
ORDER BY created_at, id
`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []ledger.Trade
	for rows.Next() {
		var t ledger.Trade
		var created int64
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Buyer, &t.Seller, &t.Price, &t.Quantity, &created); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.CreatedAt = time.Unix(0, created)
		out = append(out, t)
	}
	return out, rows.Err()
}
