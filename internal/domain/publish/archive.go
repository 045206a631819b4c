package publish

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/gzip"

	"github.com/TrueSelph/jvcli/internal/domain/catalog"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

const manifestFileName = "info.yaml"

// maxManifestSize bounds the manifest read; a larger info.yaml is garbage.
const maxManifestSize = 256 * 1024

// inspectArtifact validates the raw artifact bytes as a gzipped tarball,
// screens entry paths, and extracts the embedded manifest. The manifest may
// sit at the archive root or inside a single top-level directory.
func inspectArtifact(data []byte, deniedPatterns []string) (catalog.Manifest, error) {
	if !mimetype.Detect(data).Is("application/gzip") {
		return catalog.Manifest{}, errs.New(errs.InvalidPackage, "artifact must be a gzipped tarball")
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return catalog.Manifest{}, errs.Wrap(errs.InvalidPackage, "artifact is not valid gzip", err)
	}
	defer gz.Close()

	var manifestData []byte
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return catalog.Manifest{}, errs.Wrap(errs.InvalidPackage, "artifact is not a valid tar archive", err)
		}

		name := path.Clean(hdr.Name)
		if path.IsAbs(hdr.Name) || name == ".." || strings.HasPrefix(name, "../") {
			return catalog.Manifest{}, errs.Newf(errs.InvalidPackage, "artifact entry %q escapes the archive root", hdr.Name)
		}
		for _, pattern := range deniedPatterns {
			match, err := doublestar.Match(pattern, name)
			if err != nil {
				return catalog.Manifest{}, errs.Wrap(errs.InvalidPackage, "invalid denied pattern", err)
			}
			if match {
				return catalog.Manifest{}, errs.Newf(errs.InvalidPackage, "artifact entry %q is not allowed", hdr.Name)
			}
		}

		if hdr.Typeflag != tar.TypeReg || !isManifestPath(name) {
			continue
		}
		if manifestData != nil {
			return catalog.Manifest{}, errs.New(errs.InvalidPackage, "artifact contains more than one "+manifestFileName)
		}
		manifestData, err = io.ReadAll(io.LimitReader(tr, maxManifestSize+1))
		if err != nil {
			return catalog.Manifest{}, errs.Wrap(errs.InvalidPackage, "failed to read "+manifestFileName, err)
		}
		if len(manifestData) > maxManifestSize {
			return catalog.Manifest{}, errs.New(errs.InvalidPackage, manifestFileName+" is too large")
		}
	}

	if manifestData == nil {
		return catalog.Manifest{}, errs.New(errs.InvalidPackage, "artifact does not contain "+manifestFileName)
	}

	var manifest catalog.Manifest
	if err := yaml.Unmarshal(manifestData, &manifest); err != nil {
		return catalog.Manifest{}, errs.Wrap(errs.InvalidPackage, manifestFileName+" is not valid YAML", err)
	}
	if manifest.Package.Name == "" || manifest.Package.Version == "" {
		return catalog.Manifest{}, errs.New(errs.InvalidPackage, manifestFileName+" must declare package name and version")
	}
	return manifest, nil
}

// isManifestPath accepts info.yaml at the root or one directory deep (the
// common "package_dir/info.yaml" layout produced by packaging tools).
func isManifestPath(name string) bool {
	if name == manifestFileName {
		return true
	}
	dir, base := path.Split(name)
	return base == manifestFileName && strings.Count(strings.TrimSuffix(dir, "/"), "/") == 0 && dir != ""
}
