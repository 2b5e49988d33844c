package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dplaneos/dplaned/internal/shared"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error {
	return r.scan(dest...)
}

// fakeDB answers QueryRow with a canned scan function and records Exec calls.
type fakeDB struct {
	scan     func(dest ...any) error
	queries  int
	execs    int
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.queries++
	db.lastSQL = sql
	db.lastArgs = args
	return fakeRow{scan: db.scan}
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs++
	db.lastSQL = sql
	db.lastArgs = args
	return pgconn.CommandTag{}, db.execErr
}

const goodToken = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" // 32 chars, stripped uuid shape

const expiryPredicate = "expires_at IS NULL OR expires_at > NOW()"

func TestValidateSessionLive(t *testing.T) {
	db := &fakeDB{scan: func(dest ...any) error {
		*(dest[0].(*int)) = 1
		return nil
	}}
	s := NewStore(db)

	ok, err := s.ValidateSession(context.Background(), goodToken, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected live session to validate")
	}
}

// The store counts only rows the expiry predicate admits; a session with
// expires_at in the past must never match. The predicate lives in the query
// itself, so every lookup path is checked for it.
func TestSessionQueriesExcludeExpiredRows(t *testing.T) {
	db := &fakeDB{scan: func(dest ...any) error {
		switch d := dest[0].(type) {
		case *int:
			*d = 0
		case *int64:
			return pgx.ErrNoRows
		case *string:
			return pgx.ErrNoRows
		}
		return nil
	}}
	s := NewStore(db)
	ctx := context.Background()

	if _, err := s.ValidateSession(ctx, goodToken, "admin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(db.lastSQL, expiryPredicate) {
		t.Fatalf("ValidateSession query must exclude expired rows, got:\n%s", db.lastSQL)
	}

	_, _ = s.GetUserFromSession(ctx, goodToken)
	if !strings.Contains(db.lastSQL, expiryPredicate) {
		t.Fatalf("GetUserFromSession query must exclude expired rows, got:\n%s", db.lastSQL)
	}

	_, _ = s.ValidateSessionAndGetUser(ctx, goodToken)
	if !strings.Contains(db.lastSQL, expiryPredicate) {
		t.Fatalf("ValidateSessionAndGetUser query must exclude expired rows, got:\n%s", db.lastSQL)
	}
}

func TestValidateSessionMiss(t *testing.T) {
	db := &fakeDB{scan: func(dest ...any) error {
		*(dest[0].(*int)) = 0
		return nil
	}}
	s := NewStore(db)

	ok, err := s.ValidateSession(context.Background(), goodToken, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected expired or unknown session to fail validation")
	}
}

func TestValidateSessionFailsClosedOnStorageError(t *testing.T) {
	db := &fakeDB{scan: func(dest ...any) error {
		return errors.New("connection refused")
	}}
	s := NewStore(db)

	ok, err := s.ValidateSession(context.Background(), goodToken, "admin")
	if ok {
		t.Fatal("storage error must never validate a session")
	}
	if !errors.Is(err, shared.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestValidateSessionRejectsMalformedTokenWithoutQuery(t *testing.T) {
	db := &fakeDB{scan: func(dest ...any) error {
		t.Fatal("database must not be queried for malformed tokens")
		return nil
	}}
	s := NewStore(db)

	for _, token := range []string{
		"",
		"short",
		"' OR '1'='1; --aaaaaaaaaaaaaaa",
		strings.Repeat("x", 101),
	} {
		ok, err := s.ValidateSession(context.Background(), token, "admin")
		if ok || err != nil {
			t.Fatalf("token %q: expected (false, nil), got (%v, %v)", token, ok, err)
		}
	}
	if db.queries != 0 {
		t.Fatalf("expected 0 queries, got %d", db.queries)
	}
}

func TestValidateSessionAndGetUser(t *testing.T) {
	db := &fakeDB{scan: func(dest ...any) error {
		*(dest[0].(*int64)) = 7
		*(dest[1].(*string)) = "operator"
		*(dest[2].(*string)) = "op@nas.local"
		return nil
	}}
	s := NewStore(db)

	user, err := s.ValidateSessionAndGetUser(context.Background(), goodToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 7 || user.Username != "operator" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestValidateSessionAndGetUserNoRows(t *testing.T) {
	db := &fakeDB{scan: func(dest ...any) error {
		return pgx.ErrNoRows
	}}
	s := NewStore(db)

	_, err := s.ValidateSessionAndGetUser(context.Background(), goodToken)
	if !errors.Is(err, shared.ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestGetUserFromSession(t *testing.T) {
	db := &fakeDB{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "admin"
		return nil
	}}
	s := NewStore(db)

	username, err := s.GetUserFromSession(context.Background(), goodToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if username != "admin" {
		t.Fatalf("expected admin, got %q", username)
	}
}

func TestDeleteStorageError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("disk full")}
	s := NewStore(db)

	err := s.Delete(context.Background(), goodToken)
	if !errors.Is(err, shared.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}
