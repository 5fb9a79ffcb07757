package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	// Name is the value accepted in configuration.
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// Returning selects INSERT ... RETURNING id over LastInsertId.
	Returning bool
	// Numbered selects $1, $2 placeholders over ?.
	Numbered bool
	// SingleConn limits the pool to one connection.
	SingleConn bool

	messagesSchema []string
}

var (
	SQLite = Dialect{
		Name:       "sqlite",
		Driver:     "sqlite",
		SingleConn: true,
		messagesSchema: []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				sender_id TEXT NOT NULL,
				receiver_id TEXT NOT NULL,
				content TEXT NOT NULL,
				sent_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, sent_at)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_pair_rev ON messages(receiver_id, sender_id, sent_at)`,
		},
	}

	Postgres = Dialect{
		Name:      "postgres",
		Driver:    "postgres",
		Returning: true,
		Numbered:  true,
		messagesSchema: []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id BIGSERIAL PRIMARY KEY,
				sender_id TEXT NOT NULL,
				receiver_id TEXT NOT NULL,
				content TEXT NOT NULL,
				sent_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, sent_at)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_pair_rev ON messages(receiver_id, sender_id, sent_at)`,
		},
	}

	MySQL = Dialect{
		Name:   "mysql",
		Driver: "mysql",
		messagesSchema: []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				sender_id VARCHAR(64) NOT NULL,
				receiver_id VARCHAR(64) NOT NULL,
				content TEXT NOT NULL,
				sent_at BIGINT NOT NULL,
				INDEX idx_messages_pair (sender_id, receiver_id, sent_at),
				INDEX idx_messages_pair_rev (receiver_id, sender_id, sent_at)
			)`,
		},
	}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case SQLite.Name, "sqlite3", "":
		return SQLite, nil
	case Postgres.Name, "postgresql", "pq":
		return Postgres, nil
	case MySQL.Name:
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unknown db driver %q", name)
	}
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
