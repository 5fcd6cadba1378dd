package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/retry"
)

// retriableStatus reports whether an HTTP status indicates transient
// blocking worth retrying. Beyond 429 and the 5xx range this includes a
// few statuses helpdesk platforms use for temporary bot throttling.
func retriableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusForbidden,
		http.StatusRequestTimeout,
		http.StatusConflict,
		http.StatusTooEarly:
		return true
	}
	return status >= 500 && status <= 599
}

// fetcher performs single-page downloads under a retry policy and a
// politeness rate limiter shared across all requests.
type fetcher struct {
	policy    retry.Policy
	limiter   *rate.Limiter
	timeout   time.Duration
	userAgent string
	client    *http.Client
}

func (f *fetcher) httpClient() *http.Client {
	if f.client == nil {
		// Timeouts are enforced per request via context so that a
		// deadline is distinguishable from a dead connection.
		f.client = &http.Client{}
	}
	return f.client
}

func (f *fetcher) fetch(ctx context.Context, pageURL string) (string, error) {
	var body string
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		body, err = f.fetchOnce(ctx, pageURL)
		return err
	})
	return body, err
}

func (f *fetcher) fetchOnce(ctx context.Context, pageURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,*/*")

	resp, err := f.httpClient().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &domain.TransientError{
				Err: fmt.Errorf("fetch %s: %w after %s", pageURL, domain.ErrTimeout, f.timeout),
			}
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Connection-level failure: transient.
		return "", &domain.TransientError{Err: fmt.Errorf("fetch %s: %w", pageURL, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", &domain.TransientError{Err: fmt.Errorf("read body of %s: %w", pageURL, err)}
		}
		return string(data), nil
	}

	statusErr := &domain.HTTPStatusError{URL: pageURL, Status: resp.StatusCode}
	if retriableStatus(resp.StatusCode) {
		return "", &domain.TransientError{
			Err:        statusErr,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return "", statusErr
}

// parseRetryAfter understands both forms of the Retry-After header:
// delay seconds and an HTTP-date. Returns 0 when absent or malformed.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
