// Package identity holds user records and credential verification. It is the
// leaf dependency of the auth service: every other component receives only a
// resolved Identity value, never raw credentials.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/TrueSelph/jvcli/internal/shared/errs"
	"github.com/TrueSelph/jvcli/internal/shared/validation"
)

// Identity is the resolved caller identity propagated through every
// authorized operation.
type Identity struct {
	Username string `json:"username"`
}

// User is a registered account. Users are never hard-deleted because
// ownership records reference them.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists user records.
type Store interface {
	CreateUser(ctx context.Context, user User) error
	UserByIdentifier(ctx context.Context, identifier string) (User, error)
	UserExists(ctx context.Context, username string) (bool, error)
}

// Service implements account registration and credential verification.
type Service struct {
	store Store
}

// NewService creates an identity service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// New validates registration input and returns a User with a freshly
// hashed credential, without persisting it.
func New(username, email, password string) (User, error) {
	if err := validation.Username(username); err != nil {
		return User{}, err
	}
	if err := validation.Email(email); err != nil {
		return User{}, err
	}
	if err := validation.Password(password); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, errs.Wrap(errs.Unavailable, "password hashing failed", err)
	}

	return User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Register validates and creates a new user. Fails with Conflict when the
// username or email is already taken.
func (s *Service) Register(ctx context.Context, username, email, password string) (User, error) {
	user, err := New(username, email, password)
	if err != nil {
		return User{}, err
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// VerifyCredentials checks an identifier (username or email) and password
// pair. Every mismatch surfaces the same Unauthorized error so callers
// cannot probe which accounts exist.
func (s *Service) VerifyCredentials(ctx context.Context, identifier, password string) (User, error) {
	user, err := s.store.UserByIdentifier(ctx, identifier)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return User{}, errs.New(errs.Unauthorized, "invalid credentials")
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, errs.New(errs.Unauthorized, "invalid credentials")
	}
	return user, nil
}

// Exists reports whether a username is registered.
func (s *Service) Exists(ctx context.Context, username string) (bool, error) {
	return s.store.UserExists(ctx, username)
}
