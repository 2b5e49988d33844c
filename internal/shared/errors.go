package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation indicates command arguments rejected by the whitelist.
	ErrValidation = errors.New("command validation failed")
	// ErrNotWhitelisted indicates an unknown command key.
	ErrNotWhitelisted = errors.New("command not whitelisted")
	// ErrSessionInvalid indicates a missing, expired or mismatched session.
	ErrSessionInvalid = errors.New("invalid or expired session")
	// ErrPermissionDenied indicates an authenticated but unauthorized request.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrSystemRoleProtected indicates an attempted mutation of a system role.
	ErrSystemRoleProtected = errors.New("system role is protected")
	// ErrStorage indicates a persistence failure during a security check.
	// Callers must resolve it as "not authorized", never "assume authorized".
	ErrStorage = errors.New("storage failure")
)
