// Package catalog owns the namespace/name/version -> metadata mapping and
// the per-version state machine. Version immutability is the linchpin
// invariant of the registry: once a tuple is inserted it is never
// overwritten, and concurrent inserts resolve at the storage layer so that
// exactly one succeeds.
package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/TrueSelph/jvcli/internal/shared/errs"
	"github.com/TrueSelph/jvcli/internal/shared/validation"
)

// VersionRecord is one immutable published version of a package.
type VersionRecord struct {
	Namespace    string     `json:"namespace"`
	Name         string     `json:"name"`
	Version      string     `json:"version"`
	Visibility   Visibility `json:"visibility"`
	ArtifactRef  string     `json:"artifact_ref"`
	Digest       string     `json:"digest"`
	Size         int64      `json:"size"`
	Manifest     Manifest   `json:"manifest"`
	PublishedBy  string     `json:"published_by"`
	CreatedAt    time.Time  `json:"created_at"`
	DeprecatedAt *time.Time `json:"deprecated_at,omitempty"`
}

// FullName returns the canonical namespace-qualified package name.
func (r VersionRecord) FullName() string {
	return validation.JoinPackageName(r.Namespace, r.Name)
}

// Deprecated reports whether the version reached its terminal state.
func (r VersionRecord) Deprecated() bool {
	return r.Visibility == VisibilityDeprecated
}

// PackageSummary is a search result row.
type PackageSummary struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Versions  int    `json:"versions"`
}

// Store persists version records.
//
// InsertVersion must be atomic: a duplicate tuple fails with Conflict and a
// failed insert leaves no partial state visible to readers. Deprecate must
// fail with NotFound for an absent tuple and InvalidOperation when the
// version is already deprecated.
type Store interface {
	InsertVersion(ctx context.Context, rec VersionRecord) error
	GetVersion(ctx context.Context, namespace, name, version string) (VersionRecord, error)
	ListVersions(ctx context.Context, namespace, name string) ([]VersionRecord, error)
	PackageExists(ctx context.Context, namespace, name string) (bool, error)
	DeprecateVersion(ctx context.Context, namespace, name, version string, at time.Time) error
	SearchPackages(ctx context.Context, query string, limit, offset int) ([]PackageSummary, error)
}

// Catalog implements the package catalog on top of a store.
type Catalog struct {
	store Store
}

// New creates a catalog.
func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// Insert commits a new version record. The record's identifying fields must
// already be validated; the store's uniqueness constraint supplies the
// immutability guarantee.
func (c *Catalog) Insert(ctx context.Context, rec VersionRecord) error {
	if err := validation.Version(rec.Version); err != nil {
		return err
	}
	if rec.Visibility != VisibilityPublic && rec.Visibility != VisibilityPrivate {
		return errs.Newf(errs.InvalidFormat, "new versions cannot be created as %q", rec.Visibility)
	}
	return c.store.InsertVersion(ctx, rec)
}

// Get returns one version record.
func (c *Catalog) Get(ctx context.Context, namespace, name, version string) (VersionRecord, error) {
	return c.store.GetVersion(ctx, namespace, name, version)
}

// List returns every version of a package in semantic-version descending
// order. A package with zero versions visible to the caller yields an empty
// slice, not an error; an unknown package yields NotFound.
func (c *Catalog) List(ctx context.Context, namespace, name string) ([]VersionRecord, error) {
	exists, err := c.store.PackageExists(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.Newf(errs.NotFound, "package %s/%s does not exist", namespace, name)
	}
	recs, err := c.store.ListVersions(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	SortDescending(recs)
	return recs, nil
}

// Deprecate transitions a version to its terminal state. One-way: never
// reversible, never a delete.
func (c *Catalog) Deprecate(ctx context.Context, namespace, name, version string) (VersionRecord, error) {
	if err := c.store.DeprecateVersion(ctx, namespace, name, version, time.Now().UTC()); err != nil {
		return VersionRecord{}, err
	}
	return c.store.GetVersion(ctx, namespace, name, version)
}

// Search lists packages whose qualified name contains the query substring.
// No ranking; ordering is deterministic by name.
func (c *Catalog) Search(ctx context.Context, query string, limit, offset int) ([]PackageSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return c.store.SearchPackages(ctx, query, limit, offset)
}

// SortDescending orders records by semantic-version precedence, highest
// first. Records that fail to parse sort last in input order; inserts
// validate versions so this only guards legacy rows.
func SortDescending(recs []VersionRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		vi, erri := semver.NewVersion(recs[i].Version)
		vj, errj := semver.NewVersion(recs[j].Version)
		if erri != nil || errj != nil {
			return errj != nil && erri == nil
		}
		return vi.GreaterThan(vj)
	})
}
