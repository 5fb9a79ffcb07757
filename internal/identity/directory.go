//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=../mocks/mock_directory.go -package=mocks

package identity

import (
	"context"

	"github.com/devaloi/courier/internal/domain"
)

// Directory resolves user ids to the public part of their user record.
type Directory interface {
	// Lookup returns domain.ErrNotFound when no user has the given id.
	Lookup(ctx context.Context, userID string) (domain.User, error)
}
