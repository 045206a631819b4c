package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TrueSelph/jvcli/internal/domain/catalog"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// InsertVersion inserts a version record. The (namespace, name, version)
// primary key rejects duplicates with Conflict; concurrent inserts of the
// same tuple are serialized by SQLite and exactly one succeeds.
func (s *Store) InsertVersion(ctx context.Context, rec catalog.VersionRecord) error {
	manifest, err := json.Marshal(rec.Manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO versions (namespace, name, version, visibility, artifact_ref,
    artifact_digest, artifact_size, manifest, published_by, created_at, deprecated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		rec.Namespace, rec.Name, rec.Version, string(rec.Visibility), rec.ArtifactRef,
		rec.Digest, rec.Size, string(manifest), rec.PublishedBy, toMillis(rec.CreatedAt))
	if isUniqueErr(err) {
		return errs.Newf(errs.Conflict, "version %s of %s/%s already exists", rec.Version, rec.Namespace, rec.Name)
	}
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// GetVersion returns one version record.
func (s *Store) GetVersion(ctx context.Context, namespace, name, version string) (catalog.VersionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT namespace, name, version, visibility, artifact_ref, artifact_digest,
    artifact_size, manifest, published_by, created_at, deprecated_at
FROM versions
WHERE namespace = ? AND name = ? AND version = ?`, namespace, name, version)

	rec, err := scanVersion(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.VersionRecord{}, errs.Newf(errs.NotFound, "version %s of %s/%s does not exist", version, namespace, name)
	}
	return rec, err
}

// ListVersions returns every version of a package in storage order; the
// catalog applies semantic-version ordering.
func (s *Store) ListVersions(ctx context.Context, namespace, name string) ([]catalog.VersionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT namespace, name, version, visibility, artifact_ref, artifact_digest,
    artifact_size, manifest, published_by, created_at, deprecated_at
FROM versions
WHERE namespace = ? AND name = ?`, namespace, name)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	var recs []catalog.VersionRecord
	for rows.Next() {
		rec, err := scanVersion(rows.Scan)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// PackageExists reports whether a package has any versions at all.
func (s *Store) PackageExists(ctx context.Context, namespace, name string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM versions WHERE namespace = ? AND name = ?", namespace, name)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count versions: %w", err)
	}
	return count > 0, nil
}

// DeprecateVersion transitions a version to deprecated. The WHERE clause is
// the state-machine guard: an already-deprecated row matches nothing and
// the distinction from a missing row is resolved afterwards.
func (s *Store) DeprecateVersion(ctx context.Context, namespace, name, version string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE versions
SET visibility = 'deprecated', deprecated_at = ?
WHERE namespace = ? AND name = ? AND version = ? AND visibility != 'deprecated'`,
		toMillis(at), namespace, name, version)
	if err != nil {
		return fmt.Errorf("deprecate version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deprecate rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var count int
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM versions WHERE namespace = ? AND name = ? AND version = ?",
		namespace, name, version)
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if count == 0 {
		return errs.Newf(errs.NotFound, "version %s of %s/%s does not exist", version, namespace, name)
	}
	return errs.Newf(errs.InvalidOperation, "version %s of %s/%s is already deprecated", version, namespace, name)
}

// SearchPackages lists packages whose qualified name contains the query
// substring, ordered by name. LIKE metacharacters in the query match
// themselves, not as wildcards.
func (s *Store) SearchPackages(ctx context.Context, query string, limit, offset int) ([]catalog.PackageSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT namespace, name, COUNT(*) AS versions
FROM versions
WHERE namespace || '/' || name LIKE '%' || ? || '%' ESCAPE '\'
GROUP BY namespace, name
ORDER BY namespace, name
LIMIT ? OFFSET ?`, escapeLike(query), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search packages: %w", err)
	}
	defer rows.Close()

	var summaries []catalog.PackageSummary
	for rows.Next() {
		var s catalog.PackageSummary
		if err := rows.Scan(&s.Namespace, &s.Name, &s.Versions); err != nil {
			return nil, fmt.Errorf("scan package summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ArtifactRefExists reports whether any version references the artifact.
// Used by the blob store orphan sweep.
func (s *Store) ArtifactRefExists(ctx context.Context, ref string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM versions WHERE artifact_ref = ?", ref)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count artifact refs: %w", err)
	}
	return count > 0, nil
}

// escapeLike makes a string safe as a literal inside a LIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanVersion(scan func(dest ...any) error) (catalog.VersionRecord, error) {
	var rec catalog.VersionRecord
	var visibility, manifest string
	var createdAt int64
	var deprecatedAt sql.NullInt64

	err := scan(&rec.Namespace, &rec.Name, &rec.Version, &visibility, &rec.ArtifactRef,
		&rec.Digest, &rec.Size, &manifest, &rec.PublishedBy, &createdAt, &deprecatedAt)
	if err != nil {
		return catalog.VersionRecord{}, err
	}

	rec.Visibility = catalog.Visibility(visibility)
	rec.CreatedAt = fromMillis(createdAt)
	if deprecatedAt.Valid {
		at := fromMillis(deprecatedAt.Int64)
		rec.DeprecatedAt = &at
	}
	if err := json.Unmarshal([]byte(manifest), &rec.Manifest); err != nil {
		return catalog.VersionRecord{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return rec, nil
}
