package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TrueSelph/jvcli/internal/domain/namespace"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// CreateNamespace creates a namespace with its sole owner in one
// transaction. Fails with Conflict when the name is taken.
func (s *Store) CreateNamespace(ctx context.Context, name, owner string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create namespace: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO namespaces (name, created_by, created_at) VALUES (?, ?, ?)",
		name, owner, toMillis(time.Now()))
	if isUniqueErr(err) {
		return errs.Newf(errs.Conflict, "namespace %q already exists", name)
	}
	if err != nil {
		return fmt.Errorf("insert namespace: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO memberships (namespace, username, role) VALUES (?, ?, ?)",
		name, owner, namespace.RoleOwner.String())
	if err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit namespace: %w", err)
	}
	return nil
}

// NamespaceExists reports whether a namespace exists.
func (s *Store) NamespaceExists(ctx context.Context, name string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM namespaces WHERE name = ?", name)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count namespaces: %w", err)
	}
	return count > 0, nil
}

// Members lists the memberships of a namespace, owners first.
func (s *Store) Members(ctx context.Context, name string) ([]namespace.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT namespace, username, role
FROM memberships
WHERE namespace = ?
ORDER BY role DESC, username ASC`, name)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []namespace.Membership
	for rows.Next() {
		var m namespace.Membership
		var role string
		if err := rows.Scan(&m.Namespace, &m.Username, &role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.Role, err = namespace.ParseRole(role)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpsertMember grants a membership, overwriting the role when the user is
// already a member. Demoting the last owner is rejected like removing them.
func (s *Store) UpsertMember(ctx context.Context, m namespace.Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert member: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if m.Role != namespace.RoleOwner {
		lastOwner, err := isLastOwner(ctx, tx, m.Namespace, m.Username)
		if err != nil {
			return err
		}
		if lastOwner {
			return errs.Newf(errs.InvalidOperation, "cannot demote the only owner of namespace %q", m.Namespace)
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO memberships (namespace, username, role) VALUES (?, ?, ?)
ON CONFLICT (namespace, username) DO UPDATE SET role = excluded.role`,
		m.Namespace, m.Username, m.Role.String())
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return tx.Commit()
}

// RemoveMember deletes a membership. The owner-count guard runs inside the
// same transaction as the delete, so concurrent removals cannot leave a
// namespace without an owner.
func (s *Store) RemoveMember(ctx context.Context, ns, username string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove member: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	lastOwner, err := isLastOwner(ctx, tx, ns, username)
	if err != nil {
		return err
	}
	if lastOwner {
		return errs.Newf(errs.InvalidOperation, "cannot remove the only owner of namespace %q", ns)
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM memberships WHERE namespace = ? AND username = ?", ns, username)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove member rows affected: %w", err)
	}
	if affected == 0 {
		return errs.Newf(errs.NotFound, "user %q is not a member of namespace %q", username, ns)
	}
	return tx.Commit()
}

// MemberRole returns the role of a user within a namespace.
func (s *Store) MemberRole(ctx context.Context, ns, username string) (namespace.Role, bool, error) {
	var role string
	row := s.db.QueryRowContext(ctx,
		"SELECT role FROM memberships WHERE namespace = ? AND username = ?", ns, username)
	err := row.Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return namespace.RoleMember, false, nil
	}
	if err != nil {
		return namespace.RoleMember, false, fmt.Errorf("scan role: %w", err)
	}
	parsed, err := namespace.ParseRole(role)
	if err != nil {
		return namespace.RoleMember, false, err
	}
	return parsed, true, nil
}

// NamespacesFor lists every namespace a user belongs to.
func (s *Store) NamespacesFor(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT namespace FROM memberships WHERE username = ? ORDER BY namespace", username)
	if err != nil {
		return nil, fmt.Errorf("query namespaces: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// isLastOwner reports whether username is an owner of ns and the only one.
func isLastOwner(ctx context.Context, tx *sql.Tx, ns, username string) (bool, error) {
	var isOwner int
	row := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memberships WHERE namespace = ? AND username = ? AND role = 'owner'",
		ns, username)
	if err := row.Scan(&isOwner); err != nil {
		return false, fmt.Errorf("count target owner: %w", err)
	}
	if isOwner == 0 {
		return false, nil
	}

	var owners int
	row = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memberships WHERE namespace = ? AND role = 'owner'", ns)
	if err := row.Scan(&owners); err != nil {
		return false, fmt.Errorf("count owners: %w", err)
	}
	return owners <= 1, nil
}
