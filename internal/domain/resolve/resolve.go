// Package resolve answers (name, version) queries, enforcing visibility
// rules. Metadata of deprecated versions stays readable forever; their
// artifacts are gone.
package resolve

import (
	"context"
	"io"

	"github.com/TrueSelph/jvcli/internal/blobstore"
	"github.com/TrueSelph/jvcli/internal/domain/catalog"
	"github.com/TrueSelph/jvcli/internal/domain/identity"
	"github.com/TrueSelph/jvcli/internal/domain/namespace"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
	"github.com/TrueSelph/jvcli/internal/shared/validation"
)

// Service resolves and serves package versions.
type Service struct {
	catalog    *catalog.Catalog
	namespaces *namespace.Registry
	blobs      blobstore.Store
}

// NewService creates a resolution service.
func NewService(cat *catalog.Catalog, namespaces *namespace.Registry, blobs blobstore.Store) *Service {
	return &Service{catalog: cat, namespaces: namespaces, blobs: blobs}
}

// Resolve returns the metadata of a package version. caller may be nil for
// anonymous requests. An empty version selects the highest non-deprecated
// version visible to the caller. Private versions resolve as NotFound for
// non-members so package existence is not leaked.
func (s *Service) Resolve(ctx context.Context, caller *identity.Identity, name, version string) (catalog.VersionRecord, error) {
	ns, bare, err := s.splitName(caller, name)
	if err != nil {
		return catalog.VersionRecord{}, err
	}

	if version == "" {
		return s.latest(ctx, caller, ns, bare)
	}

	rec, err := s.catalog.Get(ctx, ns, bare, version)
	if err != nil {
		return catalog.VersionRecord{}, err
	}
	if !s.visible(ctx, caller, rec) {
		return catalog.VersionRecord{}, errs.Newf(errs.NotFound, "version %s of %s does not exist", version, rec.FullName())
	}
	return rec, nil
}

// Fetch resolves a version and opens its artifact. Deprecated versions
// fail with Gone: their metadata remains readable through Resolve but the
// artifact is withdrawn.
func (s *Service) Fetch(ctx context.Context, caller *identity.Identity, name, version string) (catalog.VersionRecord, io.ReadCloser, error) {
	rec, err := s.Resolve(ctx, caller, name, version)
	if err != nil {
		return catalog.VersionRecord{}, nil, err
	}
	if rec.Deprecated() {
		return catalog.VersionRecord{}, nil, errs.Newf(errs.Gone, "version %s of %s is deprecated", rec.Version, rec.FullName())
	}
	body, err := s.blobs.Get(ctx, rec.ArtifactRef)
	if err != nil {
		return catalog.VersionRecord{}, nil, err
	}
	return rec, body, nil
}

// latest picks the highest semantic version among non-deprecated versions
// visible to the caller. Deterministic rule: order by semver descending,
// drop deprecated, drop invisible, take the head.
func (s *Service) latest(ctx context.Context, caller *identity.Identity, ns, name string) (catalog.VersionRecord, error) {
	recs, err := s.catalog.List(ctx, ns, name)
	if err != nil {
		return catalog.VersionRecord{}, err
	}
	for _, rec := range recs {
		if rec.Deprecated() || !s.visible(ctx, caller, rec) {
			continue
		}
		return rec, nil
	}
	return catalog.VersionRecord{}, errs.Newf(errs.NotFound, "package %s/%s has no resolvable version", ns, name)
}

// visible applies the visibility rules: public is open, private requires
// namespace membership, deprecated metadata is always readable.
func (s *Service) visible(ctx context.Context, caller *identity.Identity, rec catalog.VersionRecord) bool {
	switch rec.Visibility {
	case catalog.VisibilityPublic, catalog.VisibilityDeprecated:
		return true
	case catalog.VisibilityPrivate:
		if caller == nil {
			return false
		}
		_, member, err := s.namespaces.Role(ctx, rec.Namespace, caller.Username)
		return err == nil && member
	default:
		return false
	}
}

// splitName requires a namespace-qualified name for anonymous callers and
// defaults to the caller's default namespace otherwise.
func (s *Service) splitName(caller *identity.Identity, name string) (string, string, error) {
	ns, bare, err := validation.SplitPackageName(name)
	if err != nil {
		return "", "", err
	}
	if ns == "" {
		if caller == nil {
			return "", "", errs.New(errs.InvalidFormat, "package name must include a namespace")
		}
		ns = caller.Username
	}
	return ns, bare, nil
}
