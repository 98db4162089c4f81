// Package identity wraps the managed identity provider's REST API. The
// provider owns accounts and credentials; this package only issues calls and
// translates the provider's coded failures into a fixed vocabulary.
package identity

import "context"

// Session is the explicit authenticated context issued by the provider at
// sign-up or sign-in. It is threaded through every call acting on an account
// instead of being read from ambient state.
type Session struct {
	UserID string
	Token  string
}

// Directory abstracts the identity provider for the coordinators.
type Directory interface {
	SignUp(ctx context.Context, email, password string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	Delete(ctx context.Context, token string) error
	UpdateEmail(ctx context.Context, sess Session, newEmail string) (Session, error)
	UpdatePassword(ctx context.Context, sess Session, newPassword string) (Session, error)
}
