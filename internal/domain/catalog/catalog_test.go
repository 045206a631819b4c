package catalog_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrueSelph/jvcli/internal/domain/catalog"
	"github.com/TrueSelph/jvcli/internal/domain/identity"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
	"github.com/TrueSelph/jvcli/internal/storage/sqlite"
)

func newCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// Version rows reference their namespace and publisher.
	ctx := context.Background()
	_, err = identity.NewService(store).Register(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)
	require.NoError(t, store.CreateNamespace(ctx, "team", "alice"))

	return catalog.New(store)
}

func record(version string, visibility catalog.Visibility) catalog.VersionRecord {
	return catalog.VersionRecord{
		Namespace:   "team",
		Name:        "tool",
		Version:     version,
		Visibility:  visibility,
		ArtifactRef: "team/tool/" + version + ".tgz",
		Digest:      "deadbeef",
		Size:        10,
		Manifest: catalog.Manifest{Package: catalog.ManifestPackage{
			Name:    "tool",
			Version: version,
		}},
		PublishedBy: "alice",
		CreatedAt:   time.Now().UTC(),
	}
}

// TestInsertValidation tests the preconditions on new records
func TestInsertValidation(t *testing.T) {
	cat := newCatalog(t)
	ctx := context.Background()

	err := cat.Insert(ctx, record("not-semver", catalog.VisibilityPublic))
	assert.True(t, errs.Is(err, errs.InvalidFormat))

	err = cat.Insert(ctx, record("1.0.0", catalog.VisibilityDeprecated))
	assert.True(t, errs.Is(err, errs.InvalidFormat))

	require.NoError(t, cat.Insert(ctx, record("1.0.0", catalog.VisibilityPublic)))
	err = cat.Insert(ctx, record("1.0.0", catalog.VisibilityPrivate))
	assert.True(t, errs.Is(err, errs.Conflict))
}

// TestListOrdering tests semantic-version descending order, which includes
// prerelease precedence
func TestListOrdering(t *testing.T) {
	cat := newCatalog(t)
	ctx := context.Background()
	for _, v := range []string{"1.0.0", "2.0.0-rc.1", "1.10.0", "1.2.0", "2.0.0"} {
		require.NoError(t, cat.Insert(ctx, record(v, catalog.VisibilityPublic)))
	}

	recs, err := cat.List(ctx, "team", "tool")
	require.NoError(t, err)

	var got []string
	for _, rec := range recs {
		got = append(got, rec.Version)
	}
	assert.Equal(t, []string{"2.0.0", "2.0.0-rc.1", "1.10.0", "1.2.0", "1.0.0"}, got)
}

// TestListUnknownPackage tests the NotFound contract
func TestListUnknownPackage(t *testing.T) {
	cat := newCatalog(t)
	_, err := cat.List(context.Background(), "team", "nothing")
	assert.True(t, errs.Is(err, errs.NotFound))
}

// TestDeprecate tests the terminal transition
func TestDeprecate(t *testing.T) {
	cat := newCatalog(t)
	ctx := context.Background()
	require.NoError(t, cat.Insert(ctx, record("1.0.0", catalog.VisibilityPublic)))

	rec, err := cat.Deprecate(ctx, "team", "tool", "1.0.0")
	require.NoError(t, err)
	assert.True(t, rec.Deprecated())
	assert.NotNil(t, rec.DeprecatedAt)

	// Terminal: a second deprecation is an illegal transition, not a no-op.
	_, err = cat.Deprecate(ctx, "team", "tool", "1.0.0")
	assert.True(t, errs.Is(err, errs.InvalidOperation))

	_, err = cat.Deprecate(ctx, "team", "tool", "0.0.9")
	assert.True(t, errs.Is(err, errs.NotFound))

	// Metadata stays readable after deprecation.
	got, err := cat.Get(ctx, "team", "tool", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, catalog.VisibilityDeprecated, got.Visibility)
}

// TestSearchLimits tests limit clamping
func TestSearchLimits(t *testing.T) {
	cat := newCatalog(t)
	ctx := context.Background()
	require.NoError(t, cat.Insert(ctx, record("1.0.0", catalog.VisibilityPublic)))

	results, err := cat.Search(ctx, "tool", 0, -5)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = cat.Search(ctx, "tool", 1000, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

// TestSortDescending tests ordering with an unparsable legacy version
func TestSortDescending(t *testing.T) {
	recs := []catalog.VersionRecord{
		{Version: "garbage"},
		{Version: "1.0.0"},
		{Version: "1.5.0"},
	}
	catalog.SortDescending(recs)
	assert.Equal(t, "1.5.0", recs[0].Version)
	assert.Equal(t, "1.0.0", recs[1].Version)
	assert.Equal(t, "garbage", recs[2].Version)
}

// TestParseVisibility tests publish-time visibility parsing
func TestParseVisibility(t *testing.T) {
	v, err := catalog.ParseVisibility("public")
	assert.NoError(t, err)
	assert.Equal(t, catalog.VisibilityPublic, v)

	v, err = catalog.ParseVisibility("private")
	assert.NoError(t, err)
	assert.Equal(t, catalog.VisibilityPrivate, v)

	_, err = catalog.ParseVisibility("deprecated")
	assert.True(t, errs.Is(err, errs.InvalidFormat))

	_, err = catalog.ParseVisibility("hidden")
	assert.True(t, errs.Is(err, errs.InvalidFormat))
}
