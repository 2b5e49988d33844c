package shared

import "context"

// User describes the authenticated actor attached to a request context.
type User struct {
	ID       int64
	Username string
	Email    string
}

type contextKey string

const userContextKey contextKey = "dplaned.user"

// ContextWithUser attaches the authenticated user to the context.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user, if any.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}
