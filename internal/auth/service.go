package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dplaneos/dplaned/internal/audit"
	"github.com/dplaneos/dplaned/internal/session"
	"github.com/dplaneos/dplaned/internal/shared"
)

// DefaultSessionTTL bounds how long a login session stays valid.
const DefaultSessionTTL = 24 * time.Hour

// Service authenticates users and manages their sessions. Every login
// attempt, successful or not, is written to the audit chain.
type Service struct {
	repo       Repository
	sessions   *session.Store
	recorder   *audit.Recorder
	logger     *slog.Logger
	sessionTTL time.Duration
}

// NewService constructs a Service. A non-positive ttl falls back to
// DefaultSessionTTL.
func NewService(repo Repository, sessions *session.Store, recorder *audit.Recorder, logger *slog.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		repo:       repo,
		sessions:   sessions,
		recorder:   recorder,
		logger:     logger,
		sessionTTL: ttl,
	}
}

// Session is the result of a successful login.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      shared.User `json:"user"`
}

// Login verifies credentials and issues a session token. Unknown usernames,
// wrong passwords and deactivated accounts all resolve to the same
// ErrInvalidCredentials so responses do not leak which part failed.
func (s *Service) Login(ctx context.Context, username, password, ip string) (Session, error) {
	cred, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.auditLogin(ctx, username, ip, false, "unknown user")
			return Session{}, shared.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !cred.Active {
		s.auditLogin(ctx, username, ip, false, "account deactivated")
		return Session{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		s.auditLogin(ctx, username, ip, false, "wrong password")
		return Session{}, shared.ErrInvalidCredentials
	}

	// Session tokens are stripped UUIDs: 32 hex characters, which satisfies
	// the alphanumeric token format the session store enforces.
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	expiresAt := time.Now().Add(s.sessionTTL)
	if err := s.sessions.Create(ctx, token, cred.Username, &expiresAt); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	s.auditLogin(ctx, username, ip, true, "")
	s.logger.Info("user logged in", slog.String("username", username))

	return Session{
		Token:     token,
		ExpiresAt: expiresAt,
		User: shared.User{
			ID:       cred.ID,
			Username: cred.Username,
			Email:    cred.Email,
		},
	}, nil
}

// Logout deletes the session row and records the event.
func (s *Service) Logout(ctx context.Context, token, ip string) error {
	username, err := s.sessions.GetUserFromSession(ctx, token)
	if err != nil {
		return shared.ErrSessionInvalid
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return err
	}
	if err := s.recorder.RecordAction(ctx, username, "auth.logout", "session", "", ip, true); err != nil {
		s.logger.Warn("audit logout failed", slog.Any("error", err))
	}
	return nil
}

func (s *Service) auditLogin(ctx context.Context, username, ip string, success bool, details string) {
	if err := s.recorder.RecordAction(ctx, username, "auth.login", "session", details, ip, success); err != nil {
		s.logger.Warn("audit login failed", slog.Any("error", err))
	}
}
