//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

package store

import (
	"context"

	"github.com/devaloi/courier/internal/domain"
)

// Store defines the message persistence interface.
type Store interface {
	// Save persists a message, assigning its ID and SentAt.
	Save(ctx context.Context, msg domain.Message) (domain.Message, error)
	// Thread returns every message between a and b in insertion order.
	Thread(ctx context.Context, a, b string) ([]domain.Message, error)
	// DeleteThread removes every message between a and b in one transaction.
	DeleteThread(ctx context.Context, a, b string) (int64, error)
	// Counterparts returns, for each user userID exchanged messages with, the latest SentAt.
	// Rows are not ordered.
	Counterparts(ctx context.Context, userID string) ([]domain.Counterpart, error)
	// Close releases any resources held by the store.
	Close() error
}
