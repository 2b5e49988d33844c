package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dplaneos/dplaned/internal/shared"
)

// stubRepo serves canned permission data and counts loads so tests can assert
// cache behavior. Role assignments honor expires_at the way the SQL layer
// does: a lapsed grant contributes nothing.
type stubRepo struct {
	permissions map[int64][]Permission
	grants      map[int64][]stubGrant
	rolesByID   map[int64]Role
	loadCount   int
	err         error
}

type stubGrant struct {
	role      Role
	expiresAt *time.Time
}

func (g stubGrant) live() bool {
	return g.expiresAt == nil || g.expiresAt.After(time.Now())
}

func (s *stubRepo) UserPermissions(_ context.Context, userID int64) ([]Permission, error) {
	s.loadCount++
	if s.err != nil {
		return nil, s.err
	}
	permissions := append([]Permission(nil), s.permissions[userID]...)
	for _, g := range s.grants[userID] {
		if g.live() {
			permissions = append(permissions, g.role.Permissions...)
		}
	}
	return permissions, nil
}

func (s *stubRepo) UserRoles(_ context.Context, userID int64) ([]Role, error) {
	if s.err != nil {
		return nil, s.err
	}
	var roles []Role
	for _, g := range s.grants[userID] {
		if g.live() {
			roles = append(roles, g.role)
		}
	}
	return roles, nil
}

func (s *stubRepo) GetRole(_ context.Context, roleID int64) (Role, error) {
	role, ok := s.rolesByID[roleID]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (s *stubRepo) ListRoles(context.Context) ([]Role, error)              { return nil, nil }
func (s *stubRepo) ListPermissions(context.Context) ([]Permission, error) { return nil, nil }
func (s *stubRepo) RolePermissions(context.Context, int64) ([]Permission, error) {
	return nil, nil
}
func (s *stubRepo) CreateRole(_ context.Context, name, _, _ string) (Role, error) {
	return Role{Name: name}, nil
}
func (s *stubRepo) UpdateRole(context.Context, int64, string, string) error { return nil }
func (s *stubRepo) DeleteRole(context.Context, int64) error                 { return nil }
func (s *stubRepo) AttachPermission(context.Context, int64, int64) error    { return nil }
func (s *stubRepo) DetachPermission(context.Context, int64, int64) error    { return nil }

func (s *stubRepo) AssignRole(_ context.Context, userID, roleID int64, _ *int64, expiresAt *time.Time) error {
	if s.grants == nil {
		s.grants = make(map[int64][]stubGrant)
	}
	s.grants[userID] = append(s.grants[userID], stubGrant{role: s.rolesByID[roleID], expiresAt: expiresAt})
	return nil
}

func (s *stubRepo) RemoveRole(_ context.Context, userID, roleID int64) error {
	var kept []stubGrant
	for _, g := range s.grants[userID] {
		if g.role.ID != roleID {
			kept = append(kept, g)
		}
	}
	s.grants[userID] = kept
	return nil
}

func TestSuperuserBypassesEmptyTable(t *testing.T) {
	repo := &stubRepo{}
	s := NewService(repo, 0)

	has, err := s.UserHasPermission(context.Background(), SuperUserID, "storage", "write")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !has {
		t.Fatal("superuser must pass every check")
	}
	if repo.loadCount != 0 {
		t.Fatal("superuser check must not touch the repository")
	}
}

func TestExactAndWildcardMatching(t *testing.T) {
	repo := &stubRepo{permissions: map[int64][]Permission{
		2: {{Resource: "storage", Action: "read"}},
		3: {{Resource: "storage", Action: "*"}},
		4: {{Resource: "*", Action: "*"}},
	}}
	s := NewService(repo, 0)
	ctx := context.Background()

	cases := []struct {
		userID   int64
		resource string
		action   string
		want     bool
	}{
		{2, "storage", "read", true},
		{2, "storage", "write", false},
		{2, "audit", "read", false},
		{3, "storage", "write", true},
		{3, "audit", "read", false},
		{4, "anything", "at-all", true},
	}
	for _, tc := range cases {
		has, err := s.UserHasPermission(ctx, tc.userID, tc.resource, tc.action)
		if err != nil {
			t.Fatalf("user %d: unexpected error: %v", tc.userID, err)
		}
		if has != tc.want {
			t.Fatalf("user %d %s:%s: expected %v, got %v", tc.userID, tc.resource, tc.action, tc.want, has)
		}
	}
}

func TestPermissionCheckUsesCache(t *testing.T) {
	repo := &stubRepo{permissions: map[int64][]Permission{
		2: {{Resource: "storage", Action: "read"}},
	}}
	s := NewService(repo, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.UserHasPermission(ctx, 2, "storage", "read"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if repo.loadCount != 1 {
		t.Fatalf("expected one repository load, got %d", repo.loadCount)
	}
}

func TestAssignRoleVisibleWithoutTTLWait(t *testing.T) {
	repo := &stubRepo{rolesByID: map[int64]Role{
		10: {ID: 10, Name: "operator", Permissions: []Permission{{Resource: "storage", Action: "write"}}},
	}}
	s := NewService(repo, time.Hour)
	ctx := context.Background()

	// Prime the cache with the empty permission set.
	has, err := s.UserHasPermission(ctx, 2, "storage", "write")
	if err != nil || has {
		t.Fatalf("expected initial denial, got (%v, %v)", has, err)
	}

	if err := s.AssignRoleToUser(ctx, 2, 10, nil, nil); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// The grant must be visible immediately despite the long TTL.
	has, err = s.UserHasPermission(ctx, 2, "storage", "write")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !has {
		t.Fatal("grant must be visible immediately after assignment")
	}
}

func TestRemoveRoleRevokesImmediately(t *testing.T) {
	repo := &stubRepo{rolesByID: map[int64]Role{
		10: {ID: 10, Name: "operator", Permissions: []Permission{{Resource: "storage", Action: "write"}}},
	}}
	s := NewService(repo, time.Hour)
	ctx := context.Background()

	if err := s.AssignRoleToUser(ctx, 2, 10, nil, nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if has, _ := s.UserHasPermission(ctx, 2, "storage", "write"); !has {
		t.Fatal("expected grant before revocation")
	}

	if err := s.RemoveRoleFromUser(ctx, 2, 10); err != nil {
		t.Fatalf("remove: %v", err)
	}
	has, err := s.UserHasPermission(ctx, 2, "storage", "write")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if has {
		t.Fatal("no check may observe a revoked grant")
	}
}

func TestExpiredTimeBoxedGrantConfersNothing(t *testing.T) {
	repo := &stubRepo{rolesByID: map[int64]Role{
		10: {ID: 10, Name: "operator", Permissions: []Permission{{Resource: "storage", Action: "write"}}},
	}}
	s := NewService(repo, time.Hour)
	ctx := context.Background()

	lapsed := time.Now().Add(-time.Second)
	if err := s.AssignRoleToUser(ctx, 2, 10, nil, &lapsed); err != nil {
		t.Fatalf("assign: %v", err)
	}

	has, err := s.UserHasPermission(ctx, 2, "storage", "write")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if has {
		t.Fatal("a lapsed time-boxed grant must not confer the permission")
	}
	roles, err := s.UserRoles(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("a lapsed grant must not surface the role, got %+v", roles)
	}
}

func TestUnexpiredTimeBoxedGrantHolds(t *testing.T) {
	repo := &stubRepo{rolesByID: map[int64]Role{
		10: {ID: 10, Name: "operator", Permissions: []Permission{{Resource: "storage", Action: "write"}}},
	}}
	s := NewService(repo, time.Hour)
	ctx := context.Background()

	until := time.Now().Add(time.Hour)
	if err := s.AssignRoleToUser(ctx, 2, 10, nil, &until); err != nil {
		t.Fatalf("assign: %v", err)
	}

	has, err := s.UserHasPermission(ctx, 2, "storage", "write")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !has {
		t.Fatal("a grant with a future expiry must confer the permission")
	}
}

func TestSystemRoleProtected(t *testing.T) {
	repo := &stubRepo{rolesByID: map[int64]Role{
		1: {ID: 1, Name: "admin", IsSystem: true},
		2: {ID: 2, Name: "custom"},
	}}
	s := NewService(repo, 0)
	ctx := context.Background()

	if err := s.UpdateRole(ctx, 1, "x", "y"); !errors.Is(err, shared.ErrSystemRoleProtected) {
		t.Fatalf("update: expected ErrSystemRoleProtected, got %v", err)
	}
	if err := s.DeleteRole(ctx, 1); !errors.Is(err, shared.ErrSystemRoleProtected) {
		t.Fatalf("delete: expected ErrSystemRoleProtected, got %v", err)
	}
	if err := s.AttachPermission(ctx, 1, 5); !errors.Is(err, shared.ErrSystemRoleProtected) {
		t.Fatalf("attach: expected ErrSystemRoleProtected, got %v", err)
	}
	if err := s.DetachPermission(ctx, 1, 5); !errors.Is(err, shared.ErrSystemRoleProtected) {
		t.Fatalf("detach: expected ErrSystemRoleProtected, got %v", err)
	}

	if err := s.UpdateRole(ctx, 2, "x", "y"); err != nil {
		t.Fatalf("non-system role update must succeed, got %v", err)
	}
}

func TestAnyAndAllCombinators(t *testing.T) {
	repo := &stubRepo{permissions: map[int64][]Permission{
		2: {{Resource: "storage", Action: "read"}},
	}}
	s := NewService(repo, 0)
	ctx := context.Background()

	required := []Permission{
		{Resource: "storage", Action: "read"},
		{Resource: "storage", Action: "write"},
	}

	any, err := s.UserHasAnyPermission(ctx, 2, required)
	if err != nil || !any {
		t.Fatalf("any: expected true, got (%v, %v)", any, err)
	}
	all, err := s.UserHasAllPermissions(ctx, 2, required)
	if err != nil || all {
		t.Fatalf("all: expected false, got (%v, %v)", all, err)
	}
}

func TestPermissionCheckPropagatesLoadError(t *testing.T) {
	repo := &stubRepo{err: errors.New("db down")}
	s := NewService(repo, 0)

	has, err := s.UserHasPermission(context.Background(), 2, "storage", "read")
	if has {
		t.Fatal("load failure must never grant access")
	}
	if err == nil {
		t.Fatal("expected error")
	}
}

var _ Repository = (*stubRepo)(nil)
