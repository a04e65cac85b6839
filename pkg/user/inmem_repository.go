package user

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemRepository is a mutex-guarded in-memory Repository used by tests.
// It enforces the same uniqueness rules as the PostgreSQL implementation.
type InMemRepository struct {
	mu    sync.Mutex
	users map[string]*User

	// set when this view runs inside InTx and already holds mu
	locked bool
	parent *InMemRepository
}

// NewInMemRepository creates an empty in-memory user repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{users: make(map[string]*User)}
}

func (r *InMemRepository) lock() func() {
	if r.locked {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *InMemRepository) store() map[string]*User {
	if r.parent != nil {
		return r.parent.users
	}
	return r.users
}

func clone(u *User) *User {
	c := *u
	return &c
}

func (r *InMemRepository) FindByID(ctx context.Context, id string) (*User, error) {
	defer r.lock()()
	if u, ok := r.store()[id]; ok {
		return clone(u), nil
	}
	return nil, ErrNotFound
}

func (r *InMemRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	defer r.lock()()
	for _, u := range r.store() {
		if strings.EqualFold(u.Email, email) {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemRepository) FindBySubject(ctx context.Context, subject string) (*User, error) {
	defer r.lock()()
	if subject == "" {
		return nil, ErrNotFound
	}
	for _, u := range r.store() {
		if u.OidcSubject == subject {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemRepository) Create(ctx context.Context, params CreateParams) (*User, error) {
	defer r.lock()()
	for _, u := range r.store() {
		if strings.EqualFold(u.Email, params.Email) {
			return nil, fmt.Errorf("%w: email", ErrDuplicate)
		}
		if params.OidcSubject != "" && u.OidcSubject == params.OidcSubject {
			return nil, fmt.Errorf("%w: oidc_subject", ErrDuplicate)
		}
	}
	now := time.Now().UTC()
	u := &User{
		ID:           uuid.New().String(),
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: params.PasswordHash,
		OidcSubject:  params.OidcSubject,
		IsAdmin:      params.IsAdmin,
		Status:       params.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.store()[u.ID] = u
	return clone(u), nil
}

func (r *InMemRepository) Update(ctx context.Context, id string, params UpdateParams) (*User, error) {
	defer r.lock()()
	u, ok := r.store()[id]
	if !ok {
		return nil, ErrNotFound
	}
	if params.OidcSubject != nil && *params.OidcSubject != "" {
		for _, other := range r.store() {
			if other.ID != id && other.OidcSubject == *params.OidcSubject {
				return nil, fmt.Errorf("%w: oidc_subject", ErrDuplicate)
			}
		}
	}
	if params.Name != nil {
		u.Name = *params.Name
	}
	if params.PasswordHash != nil {
		u.PasswordHash = *params.PasswordHash
	}
	if params.OidcSubject != nil {
		u.OidcSubject = *params.OidcSubject
	}
	if params.ProfileImage != nil {
		u.ProfileImage = *params.ProfileImage
	}
	if params.Status != nil {
		u.Status = *params.Status
	}
	u.UpdatedAt = time.Now().UTC()
	return clone(u), nil
}

func (r *InMemRepository) Delete(ctx context.Context, id string) error {
	defer r.lock()()
	if _, ok := r.store()[id]; !ok {
		return ErrNotFound
	}
	delete(r.store(), id)
	return nil
}

func (r *InMemRepository) CountAdmins(ctx context.Context) (int64, error) {
	defer r.lock()()
	var count int64
	for _, u := range r.store() {
		if u.IsAdmin {
			count++
		}
	}
	return count, nil
}

// InTx holds the repository lock for the duration of fn, giving the same
// isolation the PostgreSQL transaction provides: no interleaved writes.
func (r *InMemRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if r.locked {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&InMemRepository{locked: true, parent: r})
}
