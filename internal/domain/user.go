package domain

import "context"

// Identity is the authenticated principal behind a request.
type Identity struct {
	ID            string
	Authenticated bool
}

// AuthProvider resolves the current user for a request context.
type AuthProvider interface {
	CurrentUser(ctx context.Context) Identity
}
