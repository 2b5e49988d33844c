// Package auth handles credential verification and session lifecycle.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dplaneos/dplaned/internal/shared"
)

// Credential is a user row as needed for login.
type Credential struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Active       bool
}

// Repository looks up login credentials.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (Credential, error)
}

// PGRepository implements Repository over PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByUsername fetches a user's credential row.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (Credential, error) {
	var c Credential
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, COALESCE(email, ''), password_hash, active
		FROM users
		WHERE username = $1
	`, username).Scan(&c.ID, &c.Username, &c.Email, &c.PasswordHash, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, shared.ErrNotFound
		}
		return Credential{}, fmt.Errorf("%w: find user: %v", shared.ErrStorage, err)
	}
	return c, nil
}

var _ Repository = (*PGRepository)(nil)
