package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/tariff-cli/internal/resilience"
)

func newTestFetcher(attempts int) *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:   "tariff-test",
		Timeout:     5 * time.Second,
		MaxRetries:  attempts,
		BaseBackoff: time.Millisecond,
	})
}

func TestDownloadIfChanged_NoETag(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tariff-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<rss></rss>"))
	}))
	defer srv.Close()

	body, _, _, err := newTestFetcher(1).DownloadIfChanged(context.Background(), srv.URL+"/feed", "")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "<rss></rss>", string(data))
}

func TestDownloadIfChanged_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, _, _, err := newTestFetcher(3).DownloadIfChanged(context.Background(), srv.URL, "")
	require.NoError(t, err)
	_ = body.Close()
	assert.Equal(t, int32(3), hits.Load())
}

func TestDownloadIfChanged_ExhaustedIsTransient(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, _, err := newTestFetcher(2).DownloadIfChanged(context.Background(), srv.URL, "")
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "http 502")
}

func TestDownloadIfChanged_NotFoundIsPermanent(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, _, err := newTestFetcher(3).DownloadIfChanged(context.Background(), srv.URL, "")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestDownloadIfChanged_InvalidURL(t *testing.T) {
	t.Parallel()
	_, _, _, err := newTestFetcher(1).DownloadIfChanged(context.Background(), "://bad", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: create request")
}

func TestDownloadIfChanged_ContextCancelled(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, _, err := newTestFetcher(3).DownloadIfChanged(ctx, srv.URL, "")
	require.Error(t, err)
}

func TestDownloadIfChanged(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()
	f := newTestFetcher(1)

	body, etag, changed, err := f.DownloadIfChanged(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, `"v1"`, etag)
	data, _ := io.ReadAll(body)
	_ = body.Close()
	assert.Equal(t, "fresh", string(data))

	body, etag, changed, err = f.DownloadIfChanged(context.Background(), srv.URL, `"v1"`)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, body)
	assert.Equal(t, `"v1"`, etag)
}

func TestDownloadIfChanged_UnexpectedStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, _, _, err := newTestFetcher(1).DownloadIfChanged(context.Background(), srv.URL, `"v0"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
}

func TestRateLimitersMerged(t *testing.T) {
	t.Parallel()
	custom := rate.NewLimiter(1, 1)
	f := NewHTTPFetcher(HTTPOptions{RateLimiters: map[string]*rate.Limiter{"feeds.example.test": custom}})

	assert.Same(t, custom, f.limiters["feeds.example.test"])
	assert.Contains(t, f.limiters, "www.federalregister.gov")
	assert.Contains(t, f.adaptiveLimiters, "ustr.gov")
	assert.Equal(t, "tariff-cli/1.0", f.opts.UserAgent)
	assert.Equal(t, 3, f.opts.MaxRetries)
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	t.Parallel()
	a := NewAdaptiveLimiter(4, 4)

	a.OnSuccess()
	assert.InDelta(t, 4.8, float64(a.Limit()), 0.001)
	for range 10 {
		a.OnSuccess()
	}
	assert.InDelta(t, 8.0, float64(a.Limit()), 0.001)

	for range 10 {
		a.OnRateLimit()
	}
	assert.InDelta(t, 1.0, float64(a.Limit()), 0.001)
}
