package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/session"
)

// InsertMessages adds messages to the pool. Messages already stored are
// left untouched.
func (s *Store) InsertMessages(ctx context.Context, msgs []news.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.d.insertIgnore+` INTO messages (id, content, impact, impact_value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert message: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, m.ID, m.Content, string(m.Impact), m.Value); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// Messages returns the whole pool in insertion order.
func (s *Store) Messages(ctx context.Context) ([]news.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, impact, impact_value
FROM messages
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []news.Message
	for rows.Next() {
		var m news.Message
		var impact string
		if err := rows.Scan(&m.ID, &m.Content, &impact, &m.Value); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Impact = news.ImpactType(impact)
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkReleased stamps the release time of a message within a session.
func (s *Store) MarkReleased(ctx context.Context, sid session.ID, id news.MessageID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE session_messages
SET released_at = ?
WHERE session_id = ? AND message_id = ?
`, at.UnixNano(), sid, id)
	if err != nil {
		return fmt.Errorf("mark released: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("mark released: message %s not in session %s", id, sid)
	}
	return nil
}
