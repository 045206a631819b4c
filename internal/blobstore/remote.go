package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// Remote stores blobs in an external HTTP object service (blob store or
// CDN origin). Transient failures are retried a bounded number of times by
// the client; whatever survives surfaces as Unavailable.
type Remote struct {
	client *resty.Client
}

// NewRemote creates a remote blob store client.
func NewRemote(baseURL, authToken string, timeout time.Duration) *Remote {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if authToken != "" {
		client.SetAuthToken(authToken)
	}
	return &Remote{client: client}
}

// Put uploads the blob under ref.
func (r *Remote) Put(ctx context.Context, ref string, reader io.Reader) (int64, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("read blob: %w", err)
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/gzip").
		SetBody(data).
		Put("/artifacts/" + ref)
	if err != nil {
		return 0, errs.Wrap(errs.Unavailable, "blob store unreachable", err)
	}
	if resp.IsError() {
		return 0, errs.Newf(errs.Unavailable, "blob store returned %d for put %q", resp.StatusCode(), ref)
	}
	return int64(len(data)), nil
}

// Get downloads the blob under ref.
func (r *Remote) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get("/artifacts/" + ref)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "blob store unreachable", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		_ = resp.RawBody().Close()
		return nil, errs.Newf(errs.NotFound, "artifact %q does not exist", ref)
	}
	if resp.IsError() {
		_ = resp.RawBody().Close()
		return nil, errs.Newf(errs.Unavailable, "blob store returned %d for get %q", resp.StatusCode(), ref)
	}
	return resp.RawBody(), nil
}

// Delete removes the blob under ref. A 404 is treated as success so the
// saga compensation stays idempotent.
func (r *Remote) Delete(ctx context.Context, ref string) error {
	resp, err := r.client.R().
		SetContext(ctx).
		Delete("/artifacts/" + ref)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "blob store unreachable", err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return errs.Newf(errs.Unavailable, "blob store returned %d for delete %q", resp.StatusCode(), ref)
	}
	return nil
}
