package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/store"
)

var usersSchema = map[string]string{
	store.SQLite.Name: `CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	store.Postgres.Name: `CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	store.MySQL.Name: `CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at BIGINT NOT NULL
	)`,
}

// SQLDirectory is a minimal user directory kept next to the message store.
type SQLDirectory struct {
	db      *sql.DB
	dialect store.Dialect
	cost    int
	now     func() time.Time
}

// DirectoryOption configures a SQLDirectory.
type DirectoryOption func(*SQLDirectory)

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) DirectoryOption {
	return func(d *SQLDirectory) { d.cost = cost }
}

// NewSQLDirectory prepares the users table on db.
func NewSQLDirectory(db *sql.DB, dialect store.Dialect, opts ...DirectoryOption) (*SQLDirectory, error) {
	schema, ok := usersSchema[dialect.Name]
	if !ok {
		return nil, fmt.Errorf("no users schema for dialect %q", dialect.Name)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create users table: %w", err)
	}

	d := &SQLDirectory{db: db, dialect: dialect, cost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Register creates a user. Emails are unique, compared case-insensitively.
func (d *SQLDirectory) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	email = normalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	u := domain.User{ID: uuid.NewString(), Name: name}
	_, err = d.db.ExecContext(ctx, d.dialect.Rebind(
		"INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)"),
		u.ID, u.Name, email, string(hash), d.now().UTC().UnixNano())
	if store.IsUniqueViolation(err) {
		return domain.User{}, fmt.Errorf("email %s: %w", email, domain.ErrConflict)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: insert user: %w", domain.ErrStore, err)
	}
	return u, nil
}

// Authenticate checks an email/password pair.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (d *SQLDirectory) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	var (
		u    domain.User
		hash string
	)
	err := d.db.QueryRowContext(ctx, d.dialect.Rebind(
		"SELECT id, name, password_hash FROM users WHERE email = ?"), normalizeEmail(email)).
		Scan(&u.ID, &u.Name, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: load user: %w", domain.ErrStore, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return domain.User{}, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	return u, nil
}

// Lookup implements Directory.
func (d *SQLDirectory) Lookup(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	err := d.db.QueryRowContext(ctx, d.dialect.Rebind("SELECT id, name FROM users WHERE id = ?"), userID).
		Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: lookup user: %w", domain.ErrStore, err)
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
