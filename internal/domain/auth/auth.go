// Package auth verifies credentials and issues session tokens. It is the
// only component that ever sees a raw credential; everything downstream
// receives a resolved identity.
package auth

import (
	"context"
	"strings"

	"github.com/TrueSelph/jvcli/internal/domain/identity"
	"github.com/TrueSelph/jvcli/internal/domain/namespace"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// Session is the result of a successful signup or login.
type Session struct {
	Token      string             `json:"token"`
	Email      string             `json:"email"`
	Namespaces namespace.Snapshot `json:"namespaces"`
}

// AccountStore creates a user and their default namespace atomically.
type AccountStore interface {
	CreateAccount(ctx context.Context, user identity.User) error
}

// Service implements signup, login, and token authentication.
type Service struct {
	users      *identity.Service
	namespaces *namespace.Registry
	accounts   AccountStore
	signer     TokenSigner
}

// NewService creates an auth service.
func NewService(users *identity.Service, namespaces *namespace.Registry, accounts AccountStore, signer TokenSigner) *Service {
	return &Service{users: users, namespaces: namespaces, accounts: accounts, signer: signer}
}

// Signup registers a user together with their default namespace (named
// after the username, with the user as sole owner) in one atomic step, then
// issues a token. Fails with Conflict when the username, email, or
// namespace name is taken, leaving no partial account behind.
func (s *Service) Signup(ctx context.Context, username, email, password string) (Session, error) {
	user, err := identity.New(username, email, password)
	if err != nil {
		return Session{}, err
	}
	if err := s.accounts.CreateAccount(ctx, user); err != nil {
		return Session{}, err
	}
	return s.session(ctx, user)
}

// Login verifies an identifier (username or email) and password and issues
// a fresh token with the caller's current namespace snapshot.
func (s *Service) Login(ctx context.Context, identifier, password string) (Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return Session{}, errs.New(errs.Unauthorized, "invalid credentials")
	}
	user, err := s.users.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		return Session{}, err
	}
	return s.session(ctx, user)
}

// Authenticate resolves a bearer token into an identity. Fails with
// Unauthorized when the token is missing, malformed, or expired.
func (s *Service) Authenticate(ctx context.Context, token string) (identity.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return identity.Identity{}, errs.New(errs.Unauthorized, "token is required")
	}
	username, err := s.signer.Verify(ctx, token)
	if err != nil {
		return identity.Identity{}, err
	}
	return identity.Identity{Username: username}, nil
}

// Snapshot returns the caller's current namespace membership snapshot.
func (s *Service) Snapshot(ctx context.Context, ident identity.Identity) (namespace.Snapshot, error) {
	return s.namespaces.SnapshotFor(ctx, ident.Username)
}

func (s *Service) session(ctx context.Context, user identity.User) (Session, error) {
	token, err := s.signer.Mint(ctx, user.Username)
	if err != nil {
		return Session{}, err
	}
	snapshot, err := s.namespaces.SnapshotFor(ctx, user.Username)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Email: user.Email, Namespaces: snapshot}, nil
}
