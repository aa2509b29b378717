// Package fetcher downloads bulletin feeds over HTTP and parses CSV, XML,
// JSON and XLSX inputs into typed rows or elements.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote feeds.
type Fetcher interface {
	// DownloadIfChanged fetches the URL unless the server reports the given
	// ETag as current. Returns (body, newETag, changed, error); body is nil
	// when changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
