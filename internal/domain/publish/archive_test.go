package publish

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

type archiveEntry struct {
	name string
	body string
}

func buildTarball(t *testing.T, entries ...archiveEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, entry := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     entry.name,
			Mode:     0o644,
			Size:     int64(len(entry.body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(entry.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

const validManifest = `package:
  name: tool
  version: 1.0.0
  meta:
    description: a test package
  dependencies:
    other_pkg: ">=0.2.0"
`

// TestInspectArtifact tests happy-path manifest extraction
func TestInspectArtifact(t *testing.T) {
	data := buildTarball(t,
		archiveEntry{"info.yaml", validManifest},
		archiveEntry{"main.jac", "walker init {}"},
	)

	manifest, err := inspectArtifact(data, nil)
	require.NoError(t, err)
	assert.Equal(t, "tool", manifest.Package.Name)
	assert.Equal(t, "1.0.0", manifest.Package.Version)
	assert.Equal(t, "a test package", manifest.Package.Meta["description"])
	assert.Equal(t, ">=0.2.0", manifest.Package.Dependencies["other_pkg"])
}

// TestInspectArtifactNestedManifest tests the package_dir/info.yaml layout
func TestInspectArtifactNestedManifest(t *testing.T) {
	data := buildTarball(t, archiveEntry{"tool/info.yaml", validManifest})

	manifest, err := inspectArtifact(data, nil)
	require.NoError(t, err)
	assert.Equal(t, "tool", manifest.Package.Name)
}

// TestInspectArtifactTooDeepManifest tests that deeper manifests do not count
func TestInspectArtifactTooDeepManifest(t *testing.T) {
	data := buildTarball(t, archiveEntry{"a/b/info.yaml", validManifest})
	_, err := inspectArtifact(data, nil)
	assert.True(t, errs.Is(err, errs.InvalidPackage))
}

// TestInspectArtifactNotGzip tests format detection
func TestInspectArtifactNotGzip(t *testing.T) {
	_, err := inspectArtifact([]byte("just plain text"), nil)
	assert.True(t, errs.Is(err, errs.InvalidPackage))
}

// TestInspectArtifactMissingManifest tests the missing info.yaml case
func TestInspectArtifactMissingManifest(t *testing.T) {
	data := buildTarball(t, archiveEntry{"main.jac", "walker init {}"})
	_, err := inspectArtifact(data, nil)
	assert.True(t, errs.Is(err, errs.InvalidPackage))
}

// TestInspectArtifactDuplicateManifest tests the ambiguous manifest case
func TestInspectArtifactDuplicateManifest(t *testing.T) {
	data := buildTarball(t,
		archiveEntry{"info.yaml", validManifest},
		archiveEntry{"tool/info.yaml", validManifest},
	)
	_, err := inspectArtifact(data, nil)
	assert.True(t, errs.Is(err, errs.InvalidPackage))
}

// TestInspectArtifactPathEscape tests entry path screening
func TestInspectArtifactPathEscape(t *testing.T) {
	data := buildTarball(t,
		archiveEntry{"../evil.sh", "rm -rf /"},
		archiveEntry{"info.yaml", validManifest},
	)
	_, err := inspectArtifact(data, nil)
	assert.True(t, errs.Is(err, errs.InvalidPackage))
}

// TestInspectArtifactDeniedPatterns tests glob-based entry rejection
func TestInspectArtifactDeniedPatterns(t *testing.T) {
	denied := []string{"**/.git/**", "**/.env"}

	data := buildTarball(t,
		archiveEntry{"info.yaml", validManifest},
		archiveEntry{"src/.env", "SECRET=x"},
	)
	_, err := inspectArtifact(data, denied)
	assert.True(t, errs.Is(err, errs.InvalidPackage))

	data = buildTarball(t,
		archiveEntry{"info.yaml", validManifest},
		archiveEntry{"src/.git/config", "[core]"},
	)
	_, err = inspectArtifact(data, denied)
	assert.True(t, errs.Is(err, errs.InvalidPackage))
}

// TestInspectArtifactIncompleteManifest tests required manifest fields
func TestInspectArtifactIncompleteManifest(t *testing.T) {
	data := buildTarball(t, archiveEntry{"info.yaml", "package:\n  name: tool\n"})
	_, err := inspectArtifact(data, nil)
	assert.True(t, errs.Is(err, errs.InvalidPackage))
}
