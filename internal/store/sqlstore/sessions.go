package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/news"
	"github.com/zappabad/bargetrader/internal/session"
	"github.com/zappabad/bargetrader/internal/trader"
)

func nanos(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64)
}

// SaveSessions writes the sessions, their message slots and members in one
// transaction.
func (s *Store) SaveSessions(ctx context.Context, sessions ...session.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	upsert := s.d.upsert("sessions", []string{"id"},
		"initial_price", "active", "created_at", "finished_at", "settlement_price")

	for _, sess := range sessions {
		var settlement decimal.NullDecimal
		if sess.SettlementPrice != nil {
			settlement = decimal.NewNullDecimal(*sess.SettlementPrice)
		}
		if _, err := tx.ExecContext(ctx, upsert, sess.ID, sess.InitialPrice, sess.Active,
			sess.CreatedAt.UnixNano(), nanos(sess.FinishedAt), settlement); err != nil {
			return fmt.Errorf("save session %s: %w", sess.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, sess.ID); err != nil {
			return fmt.Errorf("clear session messages: %w", err)
		}
		for i, r := range sess.Messages {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO session_messages (session_id, seq, message_id, released_at)
VALUES (?, ?, ?, ?)
`, sess.ID, i, r.Message.ID, nanos(r.ReleasedAt)); err != nil {
				return fmt.Errorf("insert session message: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM session_members WHERE session_id = ?`, sess.ID); err != nil {
			return fmt.Errorf("clear session members: %w", err)
		}
		seq := 0
		for _, group := range []struct {
			kind trader.Kind
			ids  []trader.ID
		}{{trader.KindHuman, sess.Players}, {trader.KindAI, sess.AIs}} {
			for _, id := range group.ids {
				if _, err := tx.ExecContext(ctx, `
INSERT INTO session_members (session_id, participant_id, kind, seq)
VALUES (?, ?, ?, ?)
`, sess.ID, id, group.kind.String(), seq); err != nil {
					return fmt.Errorf("insert session member: %w", err)
				}
				seq++
			}
		}
	}
	return tx.Commit()
}

// Sessions returns every stored session with its messages and members,
// oldest first.
func (s *Store) Sessions(ctx context.Context) ([]session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, initial_price, active, created_at, finished_at, settlement_price
FROM sessions
ORDER BY created_at, id
`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Session
	index := make(map[session.ID]int)
	for rows.Next() {
		var sess session.Session
		var created int64
		var finished sql.NullInt64
		var settlement decimal.NullDecimal
		if err := rows.Scan(&sess.ID, &sess.InitialPrice, &sess.Active, &created, &finished, &settlement); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.CreatedAt = time.Unix(0, created)
		sess.FinishedAt = fromNanos(finished)
		if settlement.Valid {
			p := settlement.Decimal
			sess.SettlementPrice = &p
		}
		index[sess.ID] = len(out)
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.loadSlots(ctx, out, index); err != nil {
		return nil, err
	}
	if err := s.loadMembers(ctx, out, index); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) loadSlots(ctx context.Context, out []session.Session, index map[session.ID]int) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT sm.session_id, sm.released_at, m.id, m.content, m.impact, m.impact_value
FROM session_messages sm
JOIN messages m ON m.id = sm.message_id
ORDER BY sm.session_id, sm.seq
`)
	if err != nil {
		return fmt.Errorf("query session messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sid session.ID
		var released sql.NullInt64
		var m news.Message
		var impact string
		if err := rows.Scan(&sid, &released, &m.ID, &m.Content, &impact, &m.Value); err != nil {
			return fmt.Errorf("scan session message: %w", err)
		}
		m.Impact = news.ImpactType(impact)
		if i, ok := index[sid]; ok {
			out[i].Messages = append(out[i].Messages, news.Release{Message: m, ReleasedAt: fromNanos(released)})
		}
	}
	return rows.Err()
}

func (s *Store) loadMembers(ctx context.Context, out []session.Session, index map[session.ID]int) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, participant_id, kind
FROM session_members
ORDER BY session_id, seq
`)
	if err != nil {
		return fmt.Errorf("query session members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sid session.ID
		var id trader.ID
		var kind string
		if err := rows.Scan(&sid, &id, &kind); err != nil {
			return fmt.Errorf("scan session member: %w", err)
		}
		i, ok := index[sid]
		if !ok {
			continue
		}
		if kind == trader.KindAI.String() {
			out[i].AIs = append(out[i].AIs, id)
		} else {
			out[i].Players = append(out[i].Players, id)
		}
	}
	return rows.Err()
}
