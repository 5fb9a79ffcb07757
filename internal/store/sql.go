package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/devaloi/courier/internal/domain"
)

// SQLStore implements Store on top of database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Option configures a SQLStore.
type Option func(*SQLStore)

// WithClock overrides the clock used to stamp SentAt.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) { s.now = now }
}

// Open connects to dsn with the given dialect and prepares the schema.
func Open(dialect Dialect, dsn string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, err
	}
	s, err := New(db, dialect, opts...)
	if err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return s, nil
}

// NewSQLite opens or creates a SQLite database at the given path.
// Use ":memory:" for an in-memory database.
func NewSQLite(path string, opts ...Option) (*SQLStore, error) {
	return Open(SQLite, path, opts...)
}

// New wraps an already opened database. The store takes ownership of db.
func New(db *sql.DB, dialect Dialect, opts ...Option) (*SQLStore, error) {
	if dialect.SingleConn {
		db.SetMaxOpenConns(1)
	}

	if dialect.Name == SQLite.Name {
		// WAL mode for better concurrent read performance.
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, err
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			return nil, err
		}
	}

	for _, stmt := range dialect.messagesSchema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	s := &SQLStore{db: db, dialect: dialect, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB exposes the underlying pool so collaborators can share it.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Save persists a message and returns it with ID and SentAt assigned.
func (s *SQLStore) Save(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.SenderID == "" || msg.ReceiverID == "" {
		return domain.Message{}, fmt.Errorf("%w: sender and receiver required", domain.ErrValidation)
	}
	msg.SentAt = s.now().UTC()

	const q = "INSERT INTO messages (sender_id, receiver_id, content, sent_at) VALUES (?, ?, ?, ?)"
	args := []any{msg.SenderID, msg.ReceiverID, msg.Content, msg.SentAt.UnixNano()}

	if s.dialect.Returning {
		if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(q+" RETURNING id"), args...).Scan(&msg.ID); err != nil {
			return domain.Message{}, fmt.Errorf("insert message: %w", err)
		}
		return msg, nil
	}

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return domain.Message{}, fmt.Errorf("insert message id: %w", err)
	}
	return msg, nil
}

// Thread returns the messages between a and b, oldest insert first.
func (s *SQLStore) Thread(ctx context.Context, a, b string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT id, sender_id, receiver_id, content, sent_at FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY id
	`), a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var (
			m  domain.Message
			ns int64
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &ns); err != nil {
			return nil, err
		}
		m.SentAt = time.Unix(0, ns).UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteThread removes the whole thread between a and b.
func (s *SQLStore) DeleteThread(ctx context.Context, a, b string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.dialect.Rebind(`
		DELETE FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
	`), a, b, b, a)
	if err != nil {
		return 0, multierr.Append(fmt.Errorf("delete thread: %w", err), tx.Rollback())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, multierr.Append(fmt.Errorf("delete thread rows: %w", err), tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return n, nil
}

// Counterparts aggregates the latest activity per counterpart of userID.
// Self-addressed messages are excluded.
func (s *SQLStore) Counterparts(ctx context.Context, userID string) ([]domain.Counterpart, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT counterpart, MAX(sent_at) FROM (
			SELECT receiver_id AS counterpart, sent_at FROM messages WHERE sender_id = ?
			UNION ALL
			SELECT sender_id AS counterpart, sent_at FROM messages WHERE receiver_id = ?
		) pairs
		WHERE counterpart <> ?
		GROUP BY counterpart
	`), userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query counterparts: %w", err)
	}
	defer rows.Close()

	var out []domain.Counterpart
	for rows.Next() {
		var (
			c  domain.Counterpart
			ns int64
		)
		if err := rows.Scan(&c.UserID, &ns); err != nil {
			return nil, err
		}
		c.LastAt = time.Unix(0, ns).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
