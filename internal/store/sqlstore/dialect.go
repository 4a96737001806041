package sqlstore

import (
	"fmt"
	"strings"
)

type dialect struct {
	name         string
	pragmas      []string
	schema       []string
	insertIgnore string
}

// upsert builds an insert that updates the non-key columns on conflict.
func (d dialect) upsert(table string, key []string, cols ...string) string {
	all := append(append([]string{}, key...), cols...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(all)), ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(all, ", "), marks)

	sets := make([]string, len(cols))
	switch d.name {
	case DriverMySQL:
		for i, c := range cols {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		}
		fmt.Fprintf(&b, " ON DUPLICATE KEY UPDATE %s", strings.Join(sets, ", "))
	default:
		for i, c := range cols {
			sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
		fmt.Fprintf(&b, " ON CONFLICT(%s) DO UPDATE SET %s", strings.Join(key, ", "), strings.Join(sets, ", "))
	}
	return b.String()
}

// Column types are chosen so the same DDL is valid in both dialects. Prices
// are decimal strings, times are unix nanoseconds.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS participants (
    id VARCHAR(64) PRIMARY KEY,
    kind VARCHAR(8) NOT NULL,
    name VARCHAR(128) NOT NULL,
    style VARCHAR(64) NOT NULL DEFAULT '',
    bid VARCHAR(64) NOT NULL DEFAULT '0',
    offer VARCHAR(64) NOT NULL DEFAULT '0',
    session_id VARCHAR(64) NOT NULL DEFAULT '',
    position BIGINT NOT NULL DEFAULT 0,
    cash_flow VARCHAR(64) NOT NULL DEFAULT '0'
)`,
	`CREATE TABLE IF NOT EXISTS messages (
    id VARCHAR(64) PRIMARY KEY,
    content TEXT NOT NULL,
    impact VARCHAR(16) NOT NULL,
    impact_value VARCHAR(64) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR(64) PRIMARY KEY,
    initial_price VARCHAR(64) NOT NULL,
    active BOOLEAN NOT NULL,
    created_at BIGINT NOT NULL,
    finished_at BIGINT NULL,
    settlement_price VARCHAR(64) NULL
)`,
	`CREATE TABLE IF NOT EXISTS session_messages (
    session_id VARCHAR(64) NOT NULL,
    seq INTEGER NOT NULL,
    message_id VARCHAR(64) NOT NULL,
    released_at BIGINT NULL,
    PRIMARY KEY (session_id, seq)
)`,
	`CREATE TABLE IF NOT EXISTS session_members (
    session_id VARCHAR(64) NOT NULL,
    participant_id VARCHAR(64) NOT NULL,
    kind VARCHAR(8) NOT NULL,
    seq INTEGER NOT NULL,
    PRIMARY KEY (session_id, participant_id)
)`,
	`CREATE TABLE IF NOT EXISTS trades (
    id VARCHAR(64) PRIMARY KEY,
    session_id VARCHAR(64) NOT NULL,
    buyer VARCHAR(64) NOT NULL,
    seller VARCHAR(64) NOT NULL,
    price VARCHAR(64) NOT NULL,
    quantity BIGINT NOT NULL,
    created_at BIGINT NOT NULL
)`,
}

var sqliteDialect = dialect{
	name: DriverSQLite,
	pragmas: []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
	},
	schema: append(append([]string{}, tables...),
		`CREATE INDEX IF NOT EXISTS idx_trades_session ON trades(session_id, created_at)`,
	),
	insertIgnore: "INSERT OR IGNORE",
}

// mysql has no CREATE INDEX IF NOT EXISTS; the trade index is left to
// migrations.
var mysqlDialect = dialect{
	name:         DriverMySQL,
	schema:       tables,
	insertIgnore: "INSERT IGNORE",
}
