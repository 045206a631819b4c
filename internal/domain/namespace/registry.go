// Package namespace owns the namespace-to-membership mapping. Every
// authorized mutation in the registry funnels through its Authorize
// predicate.
package namespace

import (
	"context"
	"sort"

	"github.com/TrueSelph/jvcli/internal/domain/identity"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
	"github.com/TrueSelph/jvcli/internal/shared/validation"
)

// Membership binds a user to a namespace with a role.
type Membership struct {
	Namespace string `json:"namespace"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
}

// Snapshot is the caller's namespace view returned by auth endpoints: the
// default namespace plus every namespace the user belongs to.
type Snapshot struct {
	Default string   `json:"default"`
	Groups  []string `json:"groups"`
}

// Store persists namespaces and memberships.
//
// RemoveMember must run its owner-count guard and the delete in a single
// transaction so concurrent removals cannot drop the last owner.
type Store interface {
	CreateNamespace(ctx context.Context, name, owner string) error
	NamespaceExists(ctx context.Context, name string) (bool, error)
	Members(ctx context.Context, name string) ([]Membership, error)
	UpsertMember(ctx context.Context, m Membership) error
	RemoveMember(ctx context.Context, namespace, username string) error
	MemberRole(ctx context.Context, namespace, username string) (Role, bool, error)
	NamespacesFor(ctx context.Context, username string) ([]string, error)
}

// UserDirectory answers whether a target user exists. Satisfied by the
// identity service.
type UserDirectory interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// Registry implements namespace and membership management.
type Registry struct {
	store Store
	users UserDirectory
}

// NewRegistry creates a namespace registry.
func NewRegistry(store Store, users UserDirectory) *Registry {
	return &Registry{store: store, users: users}
}

// Create creates a namespace with the caller as sole owner. Fails with
// Conflict when the name is taken.
func (r *Registry) Create(ctx context.Context, caller identity.Identity, name string) ([]Membership, error) {
	if err := validation.NamespaceName(name); err != nil {
		return nil, err
	}
	if err := r.store.CreateNamespace(ctx, name, caller.Username); err != nil {
		return nil, err
	}
	return r.store.Members(ctx, name)
}

// AddMember grants or overwrites a membership role. Only owners may manage
// membership; re-adding an existing member with a new role overwrites it.
func (r *Registry) AddMember(ctx context.Context, caller identity.Identity, namespace, target string, role Role) ([]Membership, error) {
	if err := r.Authorize(ctx, caller, namespace, RoleOwner); err != nil {
		return nil, err
	}
	exists, err := r.users.Exists(ctx, target)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.Newf(errs.NotFound, "user %q does not exist", target)
	}
	m := Membership{Namespace: namespace, Username: target, Role: role}
	if err := r.store.UpsertMember(ctx, m); err != nil {
		return nil, err
	}
	return r.store.Members(ctx, namespace)
}

// RemoveMember revokes a membership. The store rejects removing the last
// owner with InvalidOperation, which covers a sole owner removing themself.
func (r *Registry) RemoveMember(ctx context.Context, caller identity.Identity, namespace, target string) ([]Membership, error) {
	if err := r.Authorize(ctx, caller, namespace, RoleOwner); err != nil {
		return nil, err
	}
	if err := r.store.RemoveMember(ctx, namespace, target); err != nil {
		return nil, err
	}
	return r.store.Members(ctx, namespace)
}

// Members returns the membership list of a namespace.
func (r *Registry) Members(ctx context.Context, namespace string) ([]Membership, error) {
	exists, err := r.store.NamespaceExists(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.Newf(errs.NotFound, "namespace %q does not exist", namespace)
	}
	return r.store.Members(ctx, namespace)
}

// Authorize checks that the caller holds at least the required role in the
// namespace. Fails with NotFound for a missing namespace and Forbidden for
// an insufficient role.
func (r *Registry) Authorize(ctx context.Context, caller identity.Identity, namespace string, required Role) error {
	exists, err := r.store.NamespaceExists(ctx, namespace)
	if err != nil {
		return err
	}
	if !exists {
		return errs.Newf(errs.NotFound, "namespace %q does not exist", namespace)
	}
	role, member, err := r.store.MemberRole(ctx, namespace, caller.Username)
	if err != nil {
		return err
	}
	if !member || !role.Satisfies(required) {
		return errs.Newf(errs.Forbidden, "user %q requires role %s in namespace %q", caller.Username, required, namespace)
	}
	return nil
}

// Role returns the caller's role in a namespace and whether they belong to it.
func (r *Registry) Role(ctx context.Context, namespace, username string) (Role, bool, error) {
	return r.store.MemberRole(ctx, namespace, username)
}

// SnapshotFor builds a user's namespace snapshot. The default namespace is
// the one named after the user.
func (r *Registry) SnapshotFor(ctx context.Context, username string) (Snapshot, error) {
	groups, err := r.store.NamespacesFor(ctx, username)
	if err != nil {
		return Snapshot{}, err
	}
	sort.Strings(groups)
	return Snapshot{Default: username, Groups: groups}, nil
}
