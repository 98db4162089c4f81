package api

import (
	"context"

	"dayplan/categories"
	"dayplan/domain"
	"dayplan/identity"
	"dayplan/tracker"
)

// Accounts coordinates the identity provider and the profile collection.
type Accounts interface {
	SignUp(ctx context.Context, email, password, firstName, lastName string) (identity.Session, domain.User, error)
	SignIn(ctx context.Context, email, password string) (identity.Session, domain.User, error)
	Profile(ctx context.Context, userID string) (domain.User, error)
	UpdateEmail(ctx context.Context, sess identity.Session, newEmail string) (identity.Session, error)
	UpdatePassword(ctx context.Context, sess identity.Session, newPassword string) (identity.Session, error)
	UpdateName(ctx context.Context, sess identity.Session, firstName, lastName string) error
}

// Tasks hands out per-user task coordinators and serves one-shot reads.
type Tasks interface {
	Acquire(userID string) *tracker.Tracker
	Release(userID string)
	Fetch(ctx context.Context, userID string) ([]domain.Task, error)
}

// Categories serves the shared category list and its live feed.
type Categories interface {
	Snapshot() []domain.Category
	Listen() (<-chan categories.Update, func())
}

// Authenticator is implemented by types able to extract sessions from
// Authorization headers.
type Authenticator interface {
	SessionFromAuthHeader(string) (identity.Session, error)
}
