// Package rbac resolves effective permissions for users via role membership,
// with wildcard matching and a time-bounded in-process cache.
package rbac

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dplaneos/dplaned/internal/shared"
)

// SuperUserID bypasses all permission checks unconditionally. It is the
// appliance's built-in root account created by the schema seed.
const SuperUserID int64 = 1

// Wildcard matches any resource or action in a permission entry.
const Wildcard = "*"

// DefaultCacheTTL bounds how long a cached permission set may serve reads.
const DefaultCacheTTL = 5 * time.Minute

// Service orchestrates permission checks and role management.
type Service struct {
	repo  Repository
	cache *permissionCache
	group singleflight.Group
}

// NewService constructs a Service. A non-positive ttl falls back to
// DefaultCacheTTL.
func NewService(repo Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		repo:  repo,
		cache: newPermissionCache(ttl),
	}
}

// UserHasPermission reports whether the user holds (resource, action),
// either exactly or through a wildcard grant.
func (s *Service) UserHasPermission(ctx context.Context, userID int64, resource, action string) (bool, error) {
	if userID == SuperUserID {
		return true, nil
	}
	permissions, err := s.effective(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range permissions {
		if p.Resource == resource && (p.Action == action || p.Action == Wildcard) {
			return true, nil
		}
		if p.Resource == Wildcard && p.Action == Wildcard {
			return true, nil
		}
	}
	return false, nil
}

// UserHasAnyPermission reports whether the user holds at least one of the
// required permissions. Short-circuits on the first grant.
func (s *Service) UserHasAnyPermission(ctx context.Context, userID int64, required []Permission) (bool, error) {
	for _, p := range required {
		has, err := s.UserHasPermission(ctx, userID, p.Resource, p.Action)
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}

// UserHasAllPermissions reports whether the user holds every required
// permission. Short-circuits on the first denial.
func (s *Service) UserHasAllPermissions(ctx context.Context, userID int64, required []Permission) (bool, error) {
	for _, p := range required {
		has, err := s.UserHasPermission(ctx, userID, p.Resource, p.Action)
		if err != nil {
			return false, err
		}
		if !has {
			return false, nil
		}
	}
	return true, nil
}

// UserRoles returns the user's unexpired roles, served from cache when fresh.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	if entry, ok := s.cache.get(userID); ok {
		return entry.roles, nil
	}
	if _, err := s.load(ctx, userID); err != nil {
		return nil, err
	}
	entry, _ := s.cache.get(userID)
	return entry.roles, nil
}

// effective returns the user's permission set, loading through singleflight
// on a cache miss so concurrent misses for one user issue a single query.
func (s *Service) effective(ctx context.Context, userID int64) ([]Permission, error) {
	if entry, ok := s.cache.get(userID); ok {
		return entry.permissions, nil
	}
	return s.load(ctx, userID)
}

func (s *Service) load(ctx context.Context, userID int64) ([]Permission, error) {
	value, err, _ := s.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		permissions, err := s.repo.UserPermissions(ctx, userID)
		if err != nil {
			return nil, err
		}
		roles, err := s.repo.UserRoles(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.cache.set(userID, permissions, roles)
		return permissions, nil
	})
	if err != nil {
		return nil, err
	}
	permissions, _ := value.([]Permission)
	return permissions, nil
}

// Role management. Every mutation targeting a system role is rejected, and
// mutations affecting a user delete that user's cache entry so the next read
// reloads from the source of truth.

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role with its permissions.
func (s *Service) GetRole(ctx context.Context, roleID int64) (Role, error) {
	return s.repo.GetRole(ctx, roleID)
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreateRole inserts a new non-system role.
func (s *Service) CreateRole(ctx context.Context, name, displayName, description string) (Role, error) {
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	return s.repo.CreateRole(ctx, name, displayName, description)
}

// UpdateRole updates a role's display metadata.
func (s *Service) UpdateRole(ctx context.Context, roleID int64, displayName, description string) error {
	if err := s.guardSystemRole(ctx, roleID); err != nil {
		return err
	}
	return s.repo.UpdateRole(ctx, roleID, displayName, description)
}

// DeleteRole removes a role.
func (s *Service) DeleteRole(ctx context.Context, roleID int64) error {
	if err := s.guardSystemRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	// The deleted role may have been granted to any user.
	s.cache.invalidateAll()
	return nil
}

// AttachPermission adds a permission to a role.
func (s *Service) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.guardSystemRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AttachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.cache.invalidateAll()
	return nil
}

// DetachPermission removes a permission from a role.
func (s *Service) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.guardSystemRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.DetachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.cache.invalidateAll()
	return nil
}

// AssignRoleToUser grants a role and invalidates the user's cache entry, so
// the grant is visible without waiting for TTL expiry.
func (s *Service) AssignRoleToUser(ctx context.Context, userID, roleID int64, grantedBy *int64, expiresAt *time.Time) error {
	if err := s.repo.AssignRole(ctx, userID, roleID, grantedBy, expiresAt); err != nil {
		return err
	}
	s.cache.invalidate(userID)
	return nil
}

// RemoveRoleFromUser revokes a role and invalidates the user's cache entry,
// guaranteeing no subsequent read observes the revoked grant.
func (s *Service) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.cache.invalidate(userID)
	return nil
}

func (s *Service) guardSystemRole(ctx context.Context, roleID int64) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return shared.ErrSystemRoleProtected
	}
	return nil
}
