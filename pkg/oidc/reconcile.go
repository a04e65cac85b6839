package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-notes/pkg/apperrors"
	"github.com/tendant/simple-notes/pkg/settings"
	"github.com/tendant/simple-notes/pkg/user"
)

// Reconciler deterministically maps verified external claims onto exactly
// one local user, linking or creating as needed.
type Reconciler struct {
	users    user.Repository
	settings *settings.Service
	avatars  *AvatarStore
}

// NewReconciler creates a reconciler
func NewReconciler(users user.Repository, settingsService *settings.Service, avatars *AvatarStore) *Reconciler {
	return &Reconciler{users: users, settings: settingsService, avatars: avatars}
}

// FindOrCreateUser resolves claims to a local user inside one transaction.
// Matching order: subject, then email, then creation under the
// registration policy. When two logins race creating the same subject, the
// loser hits the uniqueness constraint and re-fetches instead of failing.
func (r *Reconciler) FindOrCreateUser(ctx context.Context, claims Claims) (*user.User, error) {
	mode, err := r.settings.GetRegistrationMode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get registration mode: %w", err)
	}

	var resolved *user.User
	var replacedImage string
	err = r.users.InTx(ctx, func(tx user.Repository) error {
		resolved, replacedImage, err = r.reconcile(ctx, tx, claims, mode)
		return err
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicate) {
			// Concurrent create for the same identity; the winner's row
			// is what we wanted anyway.
			if u, ferr := r.users.FindBySubject(ctx, claims.Subject); ferr == nil {
				return u, nil
			}
		}
		return nil, err
	}

	// The superseded avatar file goes away only after the record pointing
	// at its replacement is committed; a rollback keeps the old file valid.
	if replacedImage != "" {
		r.avatars.RemoveReplaced(replacedImage)
	}
	return resolved, nil
}

func (r *Reconciler) reconcile(ctx context.Context, tx user.Repository, claims Claims, mode settings.RegistrationMode) (*user.User, string, error) {
	// Fast path: subject already bound.
	existing, err := tx.FindBySubject(ctx, claims.Subject)
	if err == nil {
		return r.updateProfile(ctx, tx, existing, claims, nil)
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to find user by subject: %w", err)
	}

	// Email match: link when unbound, reject when bound elsewhere.
	existing, err = tx.FindByEmail(ctx, claims.Email)
	if err == nil {
		if existing.OidcSubject != "" && existing.OidcSubject != claims.Subject {
			return nil, "", apperrors.New(apperrors.ErrCodeConflict,
				"This email is already linked to a different sign-in account.")
		}
		var subject *string
		if existing.OidcSubject == "" {
			subject = &claims.Subject
			slog.Info("Linked OIDC subject to existing user", "email", claims.Email)
		}
		return r.updateProfile(ctx, tx, existing, claims, subject)
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to find user by email: %w", err)
	}

	// Truly new identity.
	if mode == settings.RegistrationDisabled {
		return nil, "", apperrors.New(apperrors.ErrCodeRegistrationDisabled, "Registration is disabled")
	}

	created, err := user.CreateProvisioned(ctx, tx, user.CreateParams{
		Email:       claims.Email,
		Name:        claims.Name,
		OidcSubject: claims.Subject,
	}, mode == settings.RegistrationReview)
	if err != nil {
		return nil, "", err
	}
	slog.Info("Created new OIDC user", "email", claims.Email)

	if image := r.avatars.Resolve(claims.Picture, created.ID); image != "" {
		updated, err := tx.Update(ctx, created.ID, user.UpdateParams{ProfileImage: &image})
		return updated, "", err
	}
	return created, "", nil
}

func (r *Reconciler) updateProfile(ctx context.Context, tx user.Repository, u *user.User, claims Claims, subject *string) (*user.User, string, error) {
	params := user.UpdateParams{
		Name:        &claims.Name,
		OidcSubject: subject,
	}
	var replaced string
	if image := r.avatars.Resolve(claims.Picture, u.ID); image != "" {
		params.ProfileImage = &image
		if image != u.ProfileImage {
			replaced = u.ProfileImage
		}
	}
	updated, err := tx.Update(ctx, u.ID, params)
	if err != nil {
		return nil, "", fmt.Errorf("failed to update user profile: %w", err)
	}
	return updated, replaced, nil
}
