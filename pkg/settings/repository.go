package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists key/value application settings.
type Repository interface {
	// Get returns the stored values for the requested keys. Missing keys
	// are simply absent from the result.
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL settings repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM settings WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return values, nil
}

func (r *PostgresRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", key, err)
	}
	return nil
}

// InMemRepository implements Repository in memory for tests
type InMemRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemRepository creates an empty in-memory settings repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{values: make(map[string]string)}
}

func (r *InMemRepository) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values := make(map[string]string)
	for _, key := range keys {
		if v, ok := r.values[key]; ok {
			values[key] = v
		}
	}
	return values, nil
}

func (r *InMemRepository) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}
