// Package publish validates an incoming artifact against its declared
// metadata and namespace policy, then commits it. Storage and catalog form
// a two-phase commit: the artifact is stored first, and a failed catalog
// insert triggers a compensating delete so no catalog entry ever points at
// a missing artifact.
package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/TrueSelph/jvcli/internal/blobstore"
	"github.com/TrueSelph/jvcli/internal/domain/catalog"
	"github.com/TrueSelph/jvcli/internal/domain/identity"
	"github.com/TrueSelph/jvcli/internal/domain/namespace"
	"github.com/TrueSelph/jvcli/internal/infrastructure/logging"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
	"github.com/TrueSelph/jvcli/internal/shared/validation"
)

// Options tunes pipeline limits and the saga retry budget.
type Options struct {
	// MaxArtifactBytes caps the uploaded artifact size.
	MaxArtifactBytes int64
	// DeniedPatterns are doublestar globs rejected inside artifacts.
	DeniedPatterns []string
	// StorageTimeout bounds each blob store call.
	StorageTimeout time.Duration
	// RetryAttempts bounds retries of transient storage failures.
	RetryAttempts uint64
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		MaxArtifactBytes: 32 << 20,
		DeniedPatterns:   []string{"**/.git/**", "**/__pycache__/**", "**/.env"},
		StorageTimeout:   10 * time.Second,
		RetryAttempts:    3,
	}
}

// Request is a publish submission.
type Request struct {
	Caller     identity.Identity
	File       io.Reader
	Name       string // may be namespace-qualified
	Version    string
	Namespace  string // optional; defaults to the caller's default namespace
	Visibility catalog.Visibility
}

// Pipeline validates and commits package publications.
type Pipeline struct {
	namespaces *namespace.Registry
	catalog    *catalog.Catalog
	blobs      blobstore.Store
	opts       Options
	logger     *logging.Logger
}

// NewPipeline creates a publish pipeline.
func NewPipeline(namespaces *namespace.Registry, cat *catalog.Catalog, blobs blobstore.Store, opts Options, logger *logging.Logger) *Pipeline {
	if opts.MaxArtifactBytes <= 0 {
		opts.MaxArtifactBytes = DefaultOptions().MaxArtifactBytes
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = DefaultOptions().StorageTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{namespaces: namespaces, catalog: cat, blobs: blobs, opts: opts, logger: logger}
}

// Publish runs the full pipeline and returns the committed version record.
func (p *Pipeline) Publish(ctx context.Context, req Request) (catalog.VersionRecord, error) {
	ns, name, err := p.resolveName(req)
	if err != nil {
		return catalog.VersionRecord{}, err
	}

	if err := p.namespaces.Authorize(ctx, req.Caller, ns, namespace.RoleMember); err != nil {
		return catalog.VersionRecord{}, err
	}
	if err := validation.Version(req.Version); err != nil {
		return catalog.VersionRecord{}, err
	}
	// Fail duplicates before reading and storing the artifact. The
	// catalog's uniqueness constraint still decides races.
	if _, err := p.catalog.Get(ctx, ns, name, req.Version); err == nil {
		return catalog.VersionRecord{}, errs.Newf(errs.Conflict, "version %s of %s/%s already exists", req.Version, ns, name)
	} else if !errs.Is(err, errs.NotFound) {
		return catalog.VersionRecord{}, err
	}

	data, err := p.readArtifact(req.File)
	if err != nil {
		return catalog.VersionRecord{}, err
	}
	manifest, err := inspectArtifact(data, p.opts.DeniedPatterns)
	if err != nil {
		return catalog.VersionRecord{}, err
	}
	if err := crossCheck(manifest, ns, name, req.Version); err != nil {
		return catalog.VersionRecord{}, err
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	rec := catalog.VersionRecord{
		Namespace:   ns,
		Name:        name,
		Version:     req.Version,
		Visibility:  req.Visibility,
		ArtifactRef: artifactRef(ns, name, req.Version, digest),
		Digest:      digest,
		Size:        int64(len(data)),
		Manifest:    manifest,
		PublishedBy: req.Caller.Username,
		CreatedAt:   time.Now().UTC(),
	}

	if err := p.storeArtifact(ctx, rec.ArtifactRef, data); err != nil {
		return catalog.VersionRecord{}, err
	}

	if err := p.catalog.Insert(ctx, rec); err != nil {
		p.compensate(ctx, rec, err)
		return catalog.VersionRecord{}, err
	}

	p.logger.Info("published package",
		zap.String("package", rec.FullName()),
		zap.String("version", rec.Version),
		zap.String("visibility", string(rec.Visibility)),
		zap.String("publisher", rec.PublishedBy),
	)
	return rec, nil
}

// artifactRef derives the storage ref for a publication. The digest is part
// of the ref so concurrent publishes of the same tuple with different
// payloads never write to the same blob; the committed record always points
// at exactly the bytes it digested.
func artifactRef(ns, name, version, digest string) string {
	return fmt.Sprintf("%s/%s/%s-%s.tgz", ns, name, version, digest[:12])
}

// compensate removes a stored artifact whose catalog insert failed, so no
// blob lingers without a catalog entry. Best effort; Sweep reclaims anything
// missed. After a lost Conflict race the blob may be shared with the winner
// (identical payloads share a ref), so it is only deleted when the winner
// references a different ref.
func (p *Pipeline) compensate(ctx context.Context, rec catalog.VersionRecord, insertErr error) {
	ctx = context.WithoutCancel(ctx)
	if errs.Is(insertErr, errs.Conflict) {
		winner, err := p.catalog.Get(ctx, rec.Namespace, rec.Name, rec.Version)
		if err != nil || winner.ArtifactRef == rec.ArtifactRef {
			return
		}
	}
	compCtx, cancel := context.WithTimeout(ctx, p.opts.StorageTimeout)
	defer cancel()
	if err := p.blobs.Delete(compCtx, rec.ArtifactRef); err != nil {
		p.logger.Warn("failed to delete orphaned artifact",
			zap.String("ref", rec.ArtifactRef), zap.Error(err))
	}
}

// resolveName resolves the target namespace and bare package name. A
// namespace embedded in the declared name must agree with the resolved
// namespace.
func (p *Pipeline) resolveName(req Request) (string, string, error) {
	declaredNS, name, err := validation.SplitPackageName(req.Name)
	if err != nil {
		return "", "", err
	}

	ns := req.Namespace
	if ns == "" {
		ns = declaredNS
	}
	if ns == "" {
		ns = req.Caller.Username
	}
	if err := validation.NamespaceName(ns); err != nil {
		return "", "", err
	}
	if declaredNS != "" && declaredNS != ns {
		return "", "", errs.Newf(errs.InvalidFormat,
			"package name declares namespace %q but the publish targets %q", declaredNS, ns)
	}
	return ns, name, nil
}

// readArtifact reads the upload, enforcing the size ceiling.
func (p *Pipeline) readArtifact(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, errs.New(errs.InvalidPackage, "artifact file is required")
	}
	data, err := io.ReadAll(io.LimitReader(r, p.opts.MaxArtifactBytes+1))
	if err != nil {
		return nil, errs.Wrap(errs.InvalidPackage, "failed to read artifact", err)
	}
	if int64(len(data)) > p.opts.MaxArtifactBytes {
		return nil, errs.Newf(errs.InvalidPackage, "artifact exceeds the %d byte limit", p.opts.MaxArtifactBytes)
	}
	if len(data) == 0 {
		return nil, errs.New(errs.InvalidPackage, "artifact file is empty")
	}
	return data, nil
}

// storeArtifact writes the blob, retrying transient failures with bounded
// exponential backoff. Business errors are never retried.
func (p *Pipeline) storeArtifact(ctx context.Context, ref string, data []byte) error {
	operation := func() error {
		opCtx, cancel := context.WithTimeout(ctx, p.opts.StorageTimeout)
		defer cancel()
		_, err := p.blobs.Put(opCtx, ref, bytes.NewReader(data))
		if err != nil && errs.CodeOf(err) != "" && !errs.Is(err, errs.Unavailable) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.opts.RetryAttempts), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return errs.Wrap(errs.Unavailable, "artifact storage failed", err)
	}
	return nil
}

// crossCheck compares the manifest's declared identity against the request.
// The manifest name may be bare or namespace-qualified.
func crossCheck(manifest catalog.Manifest, ns, name, version string) error {
	declared := manifest.Package.Name
	if declared != name && declared != validation.JoinPackageName(ns, name) {
		return errs.Newf(errs.MetadataMismatch,
			"manifest declares package %q but the request targets %q", declared, validation.JoinPackageName(ns, name))
	}
	if manifest.Package.Version != version {
		return errs.Newf(errs.MetadataMismatch,
			"manifest declares version %q but the request targets %q", manifest.Package.Version, version)
	}
	return nil
}
