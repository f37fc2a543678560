package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/disaster-recon/internal/resilience"
)

func newTestFetcher(maxRetries int) *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:      "test-agent/1.0",
		Timeout:        5 * time.Second,
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
	})
}

func TestDownloadSuccess(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	defer srv.Close()

	f := newTestFetcher(3)
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, string(data))
	assert.Equal(t, "test-agent/1.0", gotUA)
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(3)
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	_ = body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestFetcher(2)
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusCodeOf(err))
	assert.Equal(t, int32(3), calls.Load(), "first attempt plus two retries")
}

func TestDownloadZeroRetriesSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusServiceUnavailable, StatusCodeOf(err))
	assert.Equal(t, 7*time.Second, resilience.RetryAfter(err))
}

func TestDownloadClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	f := newTestFetcher(3)
	_, err := f.Download(context.Background(), srv.URL+"/v2/DisasterDeclarationsSummaries")
	require.Error(t, err)

	assert.Equal(t, http.StatusBadRequest, StatusCodeOf(err))
	assert.Contains(t, err.Error(), "/v2/DisasterDeclarationsSummaries")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownloadRateLimitedUsesAdaptiveLimiter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	host := srv.Listener.Addr().String()
	adaptive := NewAdaptiveLimiter(100, 100)
	f := NewHTTPFetcher(HTTPOptions{
		MaxRetries:       3,
		InitialBackoff:   time.Millisecond,
		AdaptiveLimiters: map[string]*AdaptiveLimiter{host: adaptive},
	})

	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	_ = body.Close()

	// Halved on 429 then raised 20% on success.
	assert.InDelta(t, 60.0, float64(adaptive.Limit()), 0.001)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownloadContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(3)
	_, err := f.Download(ctx, srv.URL)
	require.Error(t, err)
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ZIP,STCOUNTYFP\n77001,48201\n"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "zip.csv")
	f := newTestFetcher(1)
	n, err := f.DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.Equal(t, int64(27), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ZIP,STCOUNTYFP\n77001,48201\n", string(data))
}

func TestDownloadToFileStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "zip.csv")
	f := newTestFetcher(1)
	_, err := f.DownloadToFile(context.Background(), srv.URL, path)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusCodeOf(err))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAdaptiveLimiterBounds(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)

	for range 20 {
		a.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(a.Limit()), 0.001)

	for range 20 {
		a.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(a.Limit()), 0.001)
}

func TestNewHTTPFetcherDefaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{
		MaxRetries:   -1,
		RateLimiters: map[string]*rate.Limiter{"example.com": rate.NewLimiter(1, 1)},
	})
	assert.Equal(t, 60*time.Second, f.opts.Timeout)
	assert.Equal(t, resilience.DefaultMaxRetries, f.opts.MaxRetries)
	assert.Equal(t, "disaster-recon/1.0", f.opts.UserAgent)
	assert.Contains(t, f.adaptiveLimiters, FEMAHost)
	assert.Contains(t, f.limiters, "example.com")
	assert.Contains(t, f.limiters, "www.huduser.gov")
}

func TestStatusCodeOfPlainError(t *testing.T) {
	assert.Equal(t, 0, StatusCodeOf(io.ErrUnexpectedEOF))
	assert.Equal(t, 418, StatusCodeOf(&StatusError{StatusCode: 418, URL: "http://x"}))
}
