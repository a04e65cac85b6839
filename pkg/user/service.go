package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-notes/pkg/apperrors"
)

// Service wraps the repository with the account-level rules the auth core
// depends on.
type Service struct {
	repo Repository
}

// NewService creates a new user service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Repo exposes the underlying repository for the auth packages.
func (s *Service) Repo() Repository {
	return s.repo
}

// Get retrieves a user by id
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.New(apperrors.ErrCodeNotFound, "user not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// Delete removes a user. Deleting the last remaining admin is forbidden so
// the system can never become unadministrable.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.InTx(ctx, func(tx Repository) error {
		u, err := tx.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperrors.New(apperrors.ErrCodeNotFound, "user not found")
			}
			return fmt.Errorf("failed to find user: %w", err)
		}
		if u.IsAdmin {
			admins, err := tx.CountAdmins(ctx)
			if err != nil {
				return fmt.Errorf("failed to count admins: %w", err)
			}
			if admins <= 1 {
				return apperrors.New(apperrors.ErrCodeForbidden, "Cannot delete the last admin user")
			}
		}
		if err := tx.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		slog.Info("User deleted", "user_id", id)
		return nil
	})
}
