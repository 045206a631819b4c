// Package blobstore holds artifact content. The registry core consumes it
// through the Store interface; a local filesystem backend and a remote HTTP
// backend are provided.
package blobstore

import (
	"context"
	"io"
)

// Store reads and writes artifact blobs by reference.
type Store interface {
	// Put stores the blob under ref, replacing any existing content.
	Put(ctx context.Context, ref string, r io.Reader) (int64, error)
	// Get opens the blob for reading. Fails with NotFound when absent.
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes the blob. Deleting an absent blob is not an error;
	// the publish saga uses Delete as its compensating action.
	Delete(ctx context.Context, ref string) error
}
