package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/TrueSelph/jvcli/internal/domain/identity"
	"github.com/TrueSelph/jvcli/internal/domain/namespace"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// CreateUser inserts a user record. Fails with Conflict when the username
// or email is already registered.
func (s *Store) CreateUser(ctx context.Context, user identity.User) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, username, email, password_hash, created_at)
VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, toMillis(user.CreatedAt))
	if isUniqueErr(err) {
		return errs.New(errs.Conflict, "username or email already taken")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CreateAccount creates a user together with their default namespace and
// owner membership in one transaction. A name collision on either the user
// or the namespace rolls the whole account back, so a failed signup leaves
// no partial state behind.
func (s *Store) CreateAccount(ctx context.Context, user identity.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create account: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO users (id, username, email, password_hash, created_at)
VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, toMillis(user.CreatedAt))
	if isUniqueErr(err) {
		return errs.New(errs.Conflict, "username or email already taken")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO namespaces (name, created_by, created_at) VALUES (?, ?, ?)",
		user.Username, user.Username, toMillis(user.CreatedAt))
	if isUniqueErr(err) {
		return errs.Newf(errs.Conflict, "namespace %q already exists", user.Username)
	}
	if err != nil {
		return fmt.Errorf("insert default namespace: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO memberships (namespace, username, role) VALUES (?, ?, ?)",
		user.Username, user.Username, namespace.RoleOwner.String())
	if err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit account: %w", err)
	}
	return nil
}

// UserByIdentifier looks a user up by username or email.
func (s *Store) UserByIdentifier(ctx context.Context, identifier string) (identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, username, email, password_hash, created_at
FROM users
WHERE username = ?1 OR email = ?1`, identifier)
	return scanUser(row)
}

// UserExists reports whether a username is registered.
func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", username)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

func scanUser(row *sql.Row) (identity.User, error) {
	var user identity.User
	var createdAt int64
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, errs.New(errs.NotFound, "user does not exist")
	}
	if err != nil {
		return identity.User{}, fmt.Errorf("scan user: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)
	return user, nil
}
