package auth

import (
	"context"
	"sync"
	"time"
)

// InMemRefreshTokenRepository implements RefreshTokenRepository in memory for tests
type InMemRefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]RefreshToken
}

// NewInMemRefreshTokenRepository creates an empty in-memory refresh token repository
func NewInMemRefreshTokenRepository() *InMemRefreshTokenRepository {
	return &InMemRefreshTokenRepository{tokens: make(map[string]RefreshToken)}
}

func (r *InMemRefreshTokenRepository) Create(ctx context.Context, token RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	r.tokens[token.Token] = token
	return nil
}

func (r *InMemRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &rt, nil
}

func (r *InMemRefreshTokenRepository) Delete(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token]; !ok {
		return ErrTokenNotFound
	}
	delete(r.tokens, token)
	return nil
}

func (r *InMemRefreshTokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, rt := range r.tokens {
		if rt.UserID == userID {
			delete(r.tokens, token)
		}
	}
	return nil
}

// Count returns the number of stored tokens, used by tests to assert rotation.
func (r *InMemRefreshTokenRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}
