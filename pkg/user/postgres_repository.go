package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

const userColumns = `
	id, email, name, password, oidc_subject, profile_image,
	is_admin, status, created_at, updated_at
`

// db is the subset of pgxpool.Pool and pgx.Tx the repository needs, so the
// same query code serves both the pooled and transactional paths.
type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
	conn db
}

// NewPostgresRepository creates a new PostgreSQL user repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, conn: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	var password, subject, image sql.NullString
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&password,
		&subject,
		&image,
		&u.IsAdmin,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.PasswordHash = password.String
	u.OidcSubject = subject.String
	u.ProfileImage = image.String
	return u, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// FindByID retrieves a user by its id
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.conn.QueryRow(ctx, query, id))
}

// FindByEmail retrieves a user by email, compared case-insensitively
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.conn.QueryRow(ctx, query, email))
}

// FindBySubject retrieves a user by its OIDC subject
func (r *PostgresRepository) FindBySubject(ctx context.Context, subject string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE oidc_subject = $1`
	return scanUser(r.conn.QueryRow(ctx, query, subject))
}

// Create inserts a new user record
func (r *PostgresRepository) Create(ctx context.Context, params CreateParams) (*User, error) {
	query := `
		INSERT INTO users (id, email, name, password, oidc_subject, is_admin, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING ` + userColumns
	u, err := scanUser(r.conn.QueryRow(ctx, query,
		uuid.New().String(),
		params.Email,
		params.Name,
		nullable(params.PasswordHash),
		nullable(params.OidcSubject),
		params.IsAdmin,
		params.Status,
	))
	if err != nil {
		return nil, mapPgError(err)
	}
	return u, nil
}

// Update applies the non-nil fields of params to the user row
func (r *PostgresRepository) Update(ctx context.Context, id string, params UpdateParams) (*User, error) {
	query := `
		UPDATE users SET
			name = COALESCE($2, name),
			password = COALESCE($3, password),
			oidc_subject = COALESCE($4, oidc_subject),
			profile_image = COALESCE($5, profile_image),
			status = COALESCE($6, status),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	var status *string
	if params.Status != nil {
		s := string(*params.Status)
		status = &s
	}
	u, err := scanUser(r.conn.QueryRow(ctx, query,
		id,
		params.Name,
		params.PasswordHash,
		params.OidcSubject,
		params.ProfileImage,
		status,
	))
	if err != nil {
		return nil, mapPgError(err)
	}
	return u, nil
}

// Delete removes a user record; refresh tokens are removed by cascade
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAdmins returns the number of admin users
func (r *PostgresRepository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE is_admin = true`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

// InTx runs fn inside a database transaction with a bounded deadline.
// Reconciliation work may include an avatar download, so the timeout is
// wider than a plain query deadline.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if r.pool == nil {
		return fmt.Errorf("nested transactions are not supported")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txRepo := &PostgresRepository{conn: tx}
	if err := fn(txRepo); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
