package rbac

import "time"

// Permission represents an atomic capability on a resource.
type Permission struct {
	ID          int64  `json:"id"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Role represents a named permission grouping. System roles are immutable.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	IsSystem    bool         `json:"is_system"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// UserRole links a user to a role, optionally time-boxed.
type UserRole struct {
	UserID    int64      `json:"user_id"`
	RoleID    int64      `json:"role_id"`
	GrantedAt time.Time  `json:"granted_at"`
	GrantedBy *int64     `json:"granted_by,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
