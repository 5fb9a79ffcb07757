// Package conversation summarizes the threads a user takes part in.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/identity"
	"github.com/devaloi/courier/internal/store"
)

// Service aggregates threads from the store and names counterparts through the directory.
type Service struct {
	store store.Store
	users identity.Directory
	log   *zap.Logger
}

// NewService creates a Service.
func NewService(s store.Store, users identity.Directory, log *zap.Logger) *Service {
	return &Service{store: s, users: users, log: log}
}

// List returns userID's counterparts, most recent activity first.
// Ties are broken by counterpart id ascending.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Conversation, error) {
	cps, err := s.store.Counterparts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}

	slices.SortStableFunc(cps, func(a, b domain.Counterpart) int {
		if c := b.LastAt.Compare(a.LastAt); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})

	return lo.Map(cps, func(c domain.Counterpart, _ int) domain.Conversation {
		return domain.Conversation{
			User:         s.describe(ctx, c.UserID),
			LastActivity: c.LastAt,
			Date:         domain.FormatDate(c.LastAt),
		}
	}), nil
}

// Thread returns the counterpart and every message exchanged with it, oldest first.
// A counterpart unknown to the directory is still served while messages with it exist.
func (s *Service) Thread(ctx context.Context, userID, counterpartID string) (domain.User, []domain.Message, error) {
	msgs, err := s.store.Thread(ctx, userID, counterpartID)
	if err != nil {
		return domain.User{}, nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}

	other, err := s.users.Lookup(ctx, counterpartID)
	switch {
	case err == nil:
		return other, msgs, nil
	case errors.Is(err, domain.ErrNotFound) && len(msgs) == 0:
		return domain.User{}, nil, err
	case !errors.Is(err, domain.ErrNotFound):
		s.log.Warn("counterpart lookup failed", zap.String("user_id", counterpartID), zap.Error(err))
	}
	return domain.User{ID: counterpartID}, msgs, nil
}

// Delete removes the whole thread between userID and counterpartID.
// Deleting nothing is NotFound when the directory does not know the counterpart either.
func (s *Service) Delete(ctx context.Context, userID, counterpartID string) (int64, error) {
	n, err := s.store.DeleteThread(ctx, userID, counterpartID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	if n == 0 {
		if _, err := s.users.Lookup(ctx, counterpartID); err != nil {
			return 0, err
		}
	}
	s.log.Info("thread deleted",
		zap.String("user_id", userID),
		zap.String("counterpart_id", counterpartID),
		zap.Int64("messages", n),
	)
	return n, nil
}

// describe falls back to the bare id when the directory does not know the user.
func (s *Service) describe(ctx context.Context, userID string) domain.User {
	u, err := s.users.Lookup(ctx, userID)
	if err == nil {
		return u
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("counterpart lookup failed", zap.String("user_id", userID), zap.Error(err))
	}
	return domain.User{ID: userID}
}
