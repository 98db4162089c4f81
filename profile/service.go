// Package profile coordinates the identity provider and the user profile
// collection. Sign-up and email changes touch both backends; when the second
// write fails the first is compensated so the two records do not diverge
// permanently.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"dayplan/docstore"
	"dayplan/domain"
	"dayplan/identity"
)

const minPasswordLength = 6

// Validation failures, detected before any network call.
var (
	ErrFieldsRequired   = errors.New("all fields are required")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidEmail     = errors.New("email address is not valid")
)

// ErrProfileMissing is returned when an account authenticates but has no
// usable profile document.
var ErrProfileMissing = errors.New("user profile not found")

// UserStore is the slice of the document store the coordinator needs.
type UserStore interface {
	Get(ctx context.Context, id string) (docstore.Document, error)
	Set(ctx context.Context, id string, fields docstore.Fields) error
	Update(ctx context.Context, id string, patch docstore.Fields) error
}

// OrphanSink receives accounts whose compensating deletion failed.
type OrphanSink interface {
	EnqueueOrphan(ctx context.Context, userID, reason string) error
}

// Service is the profile coordinator.
type Service struct {
	dir     identity.Directory
	users   UserStore
	orphans OrphanSink
	log     *log.Logger
}

// NewService wires the coordinator. orphans may be nil when no cleanup queue
// is configured.
func NewService(dir identity.Directory, users UserStore, orphans OrphanSink, logger *log.Logger) *Service {
	return &Service{dir: dir, users: users, orphans: orphans, log: logger}
}

// SignUp creates an account and its profile document. When the profile write
// fails the new account is deleted again and the profile-write error is
// reported; a failed deletion is parked on the cleanup queue instead of
// masking that error.
func (s *Service) SignUp(ctx context.Context, email, password, firstName, lastName string) (identity.Session, domain.User, error) {
	if anyBlank(email, password, firstName, lastName) {
		return identity.Session{}, domain.User{}, ErrFieldsRequired
	}
	if len(password) < minPasswordLength {
		return identity.Session{}, domain.User{}, ErrPasswordTooShort
	}

	sess, err := s.dir.SignUp(ctx, email, password)
	if err != nil {
		return identity.Session{}, domain.User{}, err
	}

	user := domain.User{
		ID:        sess.UserID,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
	}
	if err := s.users.Set(ctx, sess.UserID, userFields(user)); err != nil {
		s.compensateSignUp(ctx, sess, err)
		return identity.Session{}, domain.User{}, fmt.Errorf("create profile: %w", err)
	}
	return sess, user, nil
}

func (s *Service) compensateSignUp(ctx context.Context, sess identity.Session, cause error) {
	delErr := s.dir.Delete(ctx, sess.Token)
	if delErr == nil {
		return
	}
	s.log.WithFields(log.Fields{"user": sess.UserID}).
		Errorf("rollback of account after profile write failure also failed: %v", delErr)
	if s.orphans == nil {
		return
	}
	if qErr := s.orphans.EnqueueOrphan(ctx, sess.UserID, cause.Error()); qErr != nil {
		s.log.WithFields(log.Fields{"user": sess.UserID}).
			Errorf("park orphan account: %v", qErr)
	}
}

// SignIn authenticates and loads the profile document. An account without a
// usable profile is treated as a failed sign-in.
func (s *Service) SignIn(ctx context.Context, email, password string) (identity.Session, domain.User, error) {
	if anyBlank(email, password) {
		return identity.Session{}, domain.User{}, ErrFieldsRequired
	}
	sess, err := s.dir.SignIn(ctx, email, password)
	if err != nil {
		return identity.Session{}, domain.User{}, err
	}
	user, err := s.Profile(ctx, sess.UserID)
	if err != nil {
		return identity.Session{}, domain.User{}, err
	}
	return sess, user, nil
}

// Profile loads the user document for an account id.
func (s *Service) Profile(ctx context.Context, userID string) (domain.User, error) {
	doc, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.User{}, ErrProfileMissing
		}
		return domain.User{}, err
	}
	user, ok := userFromDocument(doc)
	if !ok {
		return domain.User{}, ErrProfileMissing
	}
	return user, nil
}

// UpdateEmail writes the new email to the profile document first, then to the
// provider. A provider failure rolls the document back to the previous email
// before the failure is surfaced. Document-first ordering keeps the window
// where the two records disagree as small as possible.
func (s *Service) UpdateEmail(ctx context.Context, sess identity.Session, newEmail string) (identity.Session, error) {
	if !domain.ValidEmail(newEmail) {
		return sess, ErrInvalidEmail
	}

	prev, err := s.Profile(ctx, sess.UserID)
	if err != nil {
		return sess, err
	}

	if err := s.users.Update(ctx, sess.UserID, docstore.Fields{"email": newEmail}); err != nil {
		return sess, fmt.Errorf("update profile email: %w", err)
	}

	next, err := s.dir.UpdateEmail(ctx, sess, newEmail)
	if err != nil {
		if rbErr := s.users.Update(ctx, sess.UserID, docstore.Fields{"email": prev.Email}); rbErr != nil {
			s.log.WithFields(log.Fields{"user": sess.UserID}).
				Errorf("rollback profile email: %v", rbErr)
		}
		return sess, err
	}
	return next, nil
}

// UpdatePassword is a single-backend pass-through.
func (s *Service) UpdatePassword(ctx context.Context, sess identity.Session, newPassword string) (identity.Session, error) {
	if len(newPassword) < minPasswordLength {
		return sess, ErrPasswordTooShort
	}
	return s.dir.UpdatePassword(ctx, sess, newPassword)
}

// UpdateName is a single-backend pass-through to the profile document.
func (s *Service) UpdateName(ctx context.Context, sess identity.Session, firstName, lastName string) error {
	if anyBlank(firstName, lastName) {
		return ErrFieldsRequired
	}
	return s.users.Update(ctx, sess.UserID, docstore.Fields{
		"firstName": firstName,
		"lastName":  lastName,
	})
}

func anyBlank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
