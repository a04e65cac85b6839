package user

import (
	"context"
	"fmt"
	"log/slog"
)

// CreateProvisioned creates a new account applying the bootstrap rule shared
// by password registration and federated auto-provisioning: when no admin
// exists yet, the new user becomes an admin and is always created active,
// so a review-mode install can still be administered.
//
// Call it with the transaction-scoped repository from InTx; the admin count
// check and the insert must not be separated by other writes.
func CreateProvisioned(ctx context.Context, tx Repository, params CreateParams, pending bool) (*User, error) {
	adminCount, err := tx.CountAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count admins: %w", err)
	}

	params.IsAdmin = adminCount == 0
	if params.IsAdmin {
		params.Status = StatusActive
	} else if pending {
		params.Status = StatusPending
	} else {
		params.Status = StatusActive
	}

	u, err := tx.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	if u.IsAdmin {
		slog.Info("First user created as admin", "user_id", u.ID, "email", u.Email)
	}
	return u, nil
}
