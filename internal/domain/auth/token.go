package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// TokenSigner issues and validates session tokens. The auth service decides
// whether a token should exist; signing mechanics stay behind this
// interface.
type TokenSigner interface {
	Mint(ctx context.Context, username string) (string, error)
	Verify(ctx context.Context, token string) (string, error)
}

// JWTSigner signs HS256 JWTs with registered claims.
type JWTSigner struct {
	secret   []byte
	issuer   string
	validity time.Duration
	now      func() time.Time
}

// NewJWTSigner creates a signer. A zero validity defaults to 24h.
func NewJWTSigner(secret []byte, issuer string, validity time.Duration) *JWTSigner {
	if validity <= 0 {
		validity = 24 * time.Hour
	}
	return &JWTSigner{
		secret:   secret,
		issuer:   issuer,
		validity: validity,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *JWTSigner) WithClock(now func() time.Time) *JWTSigner {
	s.now = now
	return s
}

// Mint issues a token for the given username.
func (s *JWTSigner) Mint(_ context.Context, username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.validity)),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify parses and validates a token, returning its subject username.
// Every failure mode (malformed, wrong signature, expired, wrong issuer)
// surfaces as Unauthorized.
func (s *JWTSigner) Verify(_ context.Context, token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", errs.Wrap(errs.Unauthorized, "invalid token", err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errs.New(errs.Unauthorized, "invalid token")
	}
	return claims.Subject, nil
}
