package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// Local stores blobs as files under a root directory. Writes go through a
// temp file and a rename so readers never observe a partial artifact.
type Local struct {
	root string
}

// NewLocal creates a local blob store rooted at dir.
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("blob store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Local{root: root}, nil
}

// Put writes the blob under ref.
func (l *Local) Put(ctx context.Context, ref string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := l.path(ref)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp blob: %w", err)
	}
	written, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("commit blob: %w", err)
	}
	return written, nil
}

// Get opens the blob under ref.
func (l *Local) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errs.Newf(errs.NotFound, "artifact %q does not exist", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Delete removes the blob under ref. Absent blobs are a no-op.
func (l *Local) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// Sweep walks the store and removes blobs the registry no longer
// references. Orphans appear when a crash lands between artifact storage
// and the compensating delete of the publish saga.
func (l *Local) Sweep(ctx context.Context, inUse func(ctx context.Context, ref string) (bool, error)) (int, error) {
	var (
		mu       sync.Mutex
		removed  int
		sweepErr error
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, l.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}

		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		ref := filepath.ToSlash(rel)

		used, err := inUse(ctx, ref)
		if err != nil {
			mu.Lock()
			sweepErr = err
			mu.Unlock()
			return nil
		}
		if used {
			return nil
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
		mu.Lock()
		removed++
		mu.Unlock()
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep blobs: %w", err)
	}
	return removed, sweepErr
}

// path resolves a ref to a filesystem path, refusing escapes from the root.
func (l *Local) path(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", errs.Newf(errs.InvalidFormat, "artifact ref %q is not valid", ref)
	}
	return filepath.Join(l.root, clean), nil
}
