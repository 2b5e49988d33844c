package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dplaneos/dplaned/internal/shared"
)

// Repository defines persistence operations for the RBAC engine.
type Repository interface {
	UserPermissions(ctx context.Context, userID int64) ([]Permission, error)
	UserRoles(ctx context.Context, userID int64) ([]Role, error)
	GetRole(ctx context.Context, roleID int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	CreateRole(ctx context.Context, name, displayName, description string) (Role, error)
	UpdateRole(ctx context.Context, roleID int64, displayName, description string) error
	DeleteRole(ctx context.Context, roleID int64) error
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
	AssignRole(ctx context.Context, userID, roleID int64, grantedBy *int64, expiresAt *time.Time) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
}

// PGRepository implements Repository over PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Queries resolving a user's grants. Both carry the expiry predicate so a
// time-boxed assignment stops conferring anything the moment it lapses.
const (
	userPermissionsQuery = `
		SELECT DISTINCT p.id, p.resource, p.action, p.display_name, p.description, p.category
		FROM permissions p
		JOIN role_permissions rp ON p.id = rp.permission_id
		JOIN user_roles ur ON rp.role_id = ur.role_id
		WHERE ur.user_id = $1
		  AND (ur.expires_at IS NULL OR ur.expires_at > NOW())
		ORDER BY p.category, p.resource, p.action
	`
	userRolesQuery = `
		SELECT r.id, r.name, r.display_name, r.description, r.is_system, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1
		  AND (ur.expires_at IS NULL OR ur.expires_at > NOW())
		ORDER BY r.name
	`
)

// UserPermissions returns the user's effective permissions through role
// membership, excluding expired time-boxed grants.
func (r *PGRepository) UserPermissions(ctx context.Context, userID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, userPermissionsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load permissions: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var permissions []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &p.DisplayName, &p.Description, &p.Category); err != nil {
			return nil, fmt.Errorf("%w: scan permission: %v", shared.ErrStorage, err)
		}
		permissions = append(permissions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load permissions: %v", shared.ErrStorage, err)
	}
	return permissions, nil
}

// UserRoles returns the user's unexpired role assignments.
func (r *PGRepository) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, userRolesQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load roles: %v", shared.ErrStorage, err)
	}
	defer rows.Close()
	return scanRoles(rows)
}

// GetRole fetches a single role with its permission set.
func (r *PGRepository) GetRole(ctx context.Context, roleID int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, display_name, description, is_system, created_at, updated_at
		FROM roles WHERE id = $1
	`, roleID).Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, fmt.Errorf("%w: get role: %v", shared.ErrStorage, err)
	}
	role.Permissions, err = r.RolePermissions(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles, system roles first.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, display_name, description, is_system, created_at, updated_at
		FROM roles
		ORDER BY is_system DESC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list roles: %v", shared.ErrStorage, err)
	}
	defer rows.Close()
	return scanRoles(rows)
}

// ListPermissions returns the permission catalog.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, resource, action, display_name, description, category
		FROM permissions
		ORDER BY category, resource, action
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list permissions: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var permissions []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &p.DisplayName, &p.Description, &p.Category); err != nil {
			return nil, fmt.Errorf("%w: scan permission: %v", shared.ErrStorage, err)
		}
		permissions = append(permissions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list permissions: %v", shared.ErrStorage, err)
	}
	return permissions, nil
}

// RolePermissions returns the permissions attached to a role.
func (r *PGRepository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.resource, p.action, p.display_name, p.description, p.category
		FROM permissions p
		JOIN role_permissions rp ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.category, p.resource, p.action
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("%w: role permissions: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var permissions []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &p.DisplayName, &p.Description, &p.Category); err != nil {
			return nil, fmt.Errorf("%w: scan permission: %v", shared.ErrStorage, err)
		}
		permissions = append(permissions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: role permissions: %v", shared.ErrStorage, err)
	}
	return permissions, nil
}

// CreateRole inserts a non-system role.
func (r *PGRepository) CreateRole(ctx context.Context, name, displayName, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, display_name, description, is_system)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, name, display_name, description, is_system, created_at, updated_at
	`, name, displayName, description).Scan(
		&role.ID, &role.Name, &role.DisplayName, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrValidation, name)
		}
		return Role{}, fmt.Errorf("%w: create role: %v", shared.ErrStorage, err)
	}
	return role, nil
}

// UpdateRole updates a non-system role. The is_system guard is enforced in
// SQL as well as in the service so the constraint survives direct callers.
func (r *PGRepository) UpdateRole(ctx context.Context, roleID int64, displayName, description string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles
		SET display_name = $2, description = $3, updated_at = NOW()
		WHERE id = $1 AND is_system = FALSE
	`, roleID, displayName, description)
	if err != nil {
		return fmt.Errorf("%w: update role: %v", shared.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteRole removes a non-system role.
func (r *PGRepository) DeleteRole(ctx context.Context, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1 AND is_system = FALSE`, roleID)
	if err != nil {
		return fmt.Errorf("%w: delete role: %v", shared.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AttachPermission adds a permission to a role.
func (r *PGRepository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("%w: attach permission: %v", shared.ErrStorage, err)
	}
	return nil
}

// DetachPermission removes a permission from a role.
func (r *PGRepository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2
	`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("%w: detach permission: %v", shared.ErrStorage, err)
	}
	return nil
}

// AssignRole grants a role to a user, optionally time-boxed.
func (r *PGRepository) AssignRole(ctx context.Context, userID, roleID int64, grantedBy *int64, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, granted_at, granted_by, expires_at)
		VALUES ($1, $2, NOW(), $3, $4)
		ON CONFLICT (user_id, role_id)
		DO UPDATE SET granted_at = NOW(), granted_by = $3, expires_at = $4
	`, userID, roleID, grantedBy, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: assign role: %v", shared.ErrStorage, err)
	}
	return nil
}

// RemoveRole revokes a role from a user.
func (r *PGRepository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("%w: remove role: %v", shared.ErrStorage, err)
	}
	return nil
}

func scanRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description,
			&role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan role: %v", shared.ErrStorage, err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan roles: %v", shared.ErrStorage, err)
	}
	return roles, nil
}

var _ Repository = (*PGRepository)(nil)
