package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parcelly/kbrag/internal/core/domain"
)

func testConfig(root string) Config {
	return Config{
		Root:           root + "/support/solutions/",
		AllowedPrefix:  "/support/solutions",
		ArticlePattern: "/support/solutions/articles/",
		MinDelay:       time.Millisecond,
		MaxDelay:       2 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
	}
}

func TestDiscover_ScopesLinks(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/support/solutions/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<a href="/support/solutions/articles/101-how-to?utm_source=portal">Article</a>
			<a href="/support/solutions/folders/2">Folder</a>
			<a href="/pricing">Pricing</a>
			<a href="https://elsewhere.example.com/support/solutions/articles/5">External</a>
			<a href="mailto:help@example.com">Mail us</a>
		</body></html>`)
	})
	mux.HandleFunc("/support/solutions/folders/2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>no links here</body></html>`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	c, err := New(testConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	urls, err := c.Discover(context.Background())
	require.NoError(t, err)

	// Only the on-origin, in-prefix article qualifies, with tracking
	// parameters stripped. The folder page qualifies as a queue
	// candidate only, so it must not appear in the results.
	require.Equal(t, []string{server.URL + "/support/solutions/articles/101-how-to"}, urls)
}

func TestDiscover_RespectsMaxPages(t *testing.T) {
	var pages int
	mux := http.NewServeMux()
	mux.HandleFunc("/support/solutions/", func(w http.ResponseWriter, r *http.Request) {
		pages++
		// Every page links to a fresh listing page: an unbounded frontier.
		fmt.Fprintf(w, `<html><body><a href="/support/solutions/folders/%d">next</a></body></html>`, pages)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxPages = 5
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = c.Discover(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, pages, 5)
}

func TestDiscover_PageFailureDoesNotAbortCrawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/support/solutions/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/support/solutions/folders/broken">Broken</a>
			<a href="/support/solutions/folders/ok">OK</a>
		</body></html>`)
	})
	mux.HandleFunc("/support/solutions/folders/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/support/solutions/folders/ok", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/support/solutions/articles/7-faq">FAQ</a></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, err := New(testConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	urls, err := c.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/support/solutions/articles/7-faq"}, urls)
}

func TestFetchHTML_BackoffThenSuccess(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		if requests <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "recovered")
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retries = 5
	cfg.MinDelay = 250 * time.Millisecond
	cfg.MaxDelay = 2500 * time.Millisecond
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	// Observe delays instead of sleeping through them.
	var delays []time.Duration
	c.fetcher.policy.Jitter = nil
	c.fetcher.policy.Sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	c.fetcher.limiter.SetLimit(1e6)

	body, err := c.FetchHTML(context.Background(), server.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "recovered", body)
	assert.Equal(t, 4, requests)

	require.Len(t, delays, 3)
	for i, d := range delays {
		if i > 0 {
			assert.GreaterOrEqual(t, d, delays[i-1], "delays must not decrease")
		}
		assert.LessOrEqual(t, d, cfg.MaxDelay)
	}
}

func TestFetchHTML_RetryAfterOverridesBackoff(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retries = 2
	// Hints are clamped to 4x MaxDelay; keep the ceiling above the 3s
	// hint so it is honored verbatim here.
	cfg.MaxDelay = time.Second
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	var delays []time.Duration
	c.fetcher.policy.Sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	c.fetcher.limiter.SetLimit(1e6)

	_, err = c.FetchHTML(context.Background(), server.URL+"/page")
	require.NoError(t, err)
	require.Len(t, delays, 1)
	assert.Equal(t, 3*time.Second, delays[0])
}

func TestFetchHTML_RetryAfterClampedToCeiling(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "3600")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retries = 2
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	var delays []time.Duration
	c.fetcher.policy.Sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	c.fetcher.limiter.SetLimit(1e6)

	_, err = c.FetchHTML(context.Background(), server.URL+"/page")
	require.NoError(t, err)
	require.Len(t, delays, 1)
	assert.Equal(t, 4*cfg.MaxDelay, delays[0], "an absurd hint must not stall the crawl")
}

func TestFetchHTML_PermanentStatusNotRetried(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retries = 5
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	c.fetcher.limiter.SetLimit(1e6)

	_, err = c.FetchHTML(context.Background(), server.URL+"/dead")
	require.Error(t, err)
	assert.Equal(t, 1, requests)
}

func TestFetchHTML_TimeoutIsDistinguishable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, "late")
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retries = 0
	cfg.RequestTimeout = 20 * time.Millisecond
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	c.fetcher.limiter.SetLimit(1e6)

	_, err = c.FetchHTML(context.Background(), server.URL+"/slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 7*time.Second, parseRetryAfter("7"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-2"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(future)
	assert.Greater(t, got, 25*time.Second)
	assert.LessOrEqual(t, got, 30*time.Second)

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(past))
}

func TestNormalizeURL(t *testing.T) {
	const pattern = "/support/solutions/articles/"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fragment stripped",
			in:   "https://kb.example.com/support/solutions/folders/2#section",
			want: "https://kb.example.com/support/solutions/folders/2",
		},
		{
			name: "pagination parameter kept, tracking dropped",
			in:   "https://kb.example.com/support/solutions/folders/2?page=3&utm_source=x",
			want: "https://kb.example.com/support/solutions/folders/2?page=3",
		},
		{
			name: "article query stripped entirely",
			in:   "https://kb.example.com/support/solutions/articles/9-faq?utm_source=x&ref=footer",
			want: "https://kb.example.com/support/solutions/articles/9-faq",
		},
		{
			name: "listing without noise untouched",
			in:   "https://kb.example.com/support/solutions/folders/2",
			want: "https://kb.example.com/support/solutions/folders/2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, normalizeURL(u, pattern))
		})
	}
}
