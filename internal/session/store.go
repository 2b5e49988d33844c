// Package session validates caller identity against the persistent session
// table. Sessions are never trusted from an in-memory cache; every check hits
// the store, and any storage error resolves as "not authorized".
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dplaneos/dplaned/internal/shared"
	"github.com/dplaneos/dplaned/internal/whitelist"
)

// DB is the subset of pgxpool.Pool the store needs, abstracted for tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides fail-closed session validation over the sessions table.
type Store struct {
	db DB
}

// NewStore constructs a Store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// ValidateSession reports whether (id, username) matches a live session row.
// Expired sessions and any storage error both resolve to false.
func (s *Store) ValidateSession(ctx context.Context, id, username string) (bool, error) {
	if !whitelist.IsValidSessionToken(id) {
		return false, nil
	}
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM sessions
		WHERE id = $1
		  AND username = $2
		  AND (expires_at IS NULL OR expires_at > NOW())
	`, id, username).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: session validation: %v", shared.ErrStorage, err)
	}
	return count > 0, nil
}

// GetUserFromSession returns the username bound to a live session.
func (s *Store) GetUserFromSession(ctx context.Context, id string) (string, error) {
	if !whitelist.IsValidSessionToken(id) {
		return "", shared.ErrSessionInvalid
	}
	var username string
	err := s.db.QueryRow(ctx, `
		SELECT username
		FROM sessions
		WHERE id = $1
		  AND (expires_at IS NULL OR expires_at > NOW())
		LIMIT 1
	`, id).Scan(&username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrSessionInvalid
		}
		return "", fmt.Errorf("%w: get user from session: %v", shared.ErrStorage, err)
	}
	return username, nil
}

// ValidateSessionAndGetUser validates a token and returns the joined user row.
// The user must be active; anything else resolves as an invalid session.
func (s *Store) ValidateSessionAndGetUser(ctx context.Context, token string) (*shared.User, error) {
	if !whitelist.IsValidSessionToken(token) {
		return nil, shared.ErrSessionInvalid
	}
	var user shared.User
	err := s.db.QueryRow(ctx, `
		SELECT u.id, u.username, COALESCE(u.email, '')
		FROM sessions s
		JOIN users u ON s.username = u.username
		WHERE s.id = $1
		  AND (s.expires_at IS NULL OR s.expires_at > NOW())
		  AND u.active
		LIMIT 1
	`, token).Scan(&user.ID, &user.Username, &user.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrSessionInvalid
		}
		return nil, fmt.Errorf("%w: session validation: %v", shared.ErrStorage, err)
	}
	return &user, nil
}

// Create persists a session row at login. A nil expiry means the session
// never expires.
func (s *Store) Create(ctx context.Context, id, username string, expiresAt *time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, username, created_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
	`, id, username, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: create session: %v", shared.ErrStorage, err)
	}
	return nil
}

// Delete removes a session row at logout.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete session: %v", shared.ErrStorage, err)
	}
	return nil
}
