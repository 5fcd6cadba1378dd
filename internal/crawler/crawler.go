// Package crawler discovers knowledge-base article URLs by breadth-first
// traversal of an allow-listed site section and downloads pages with
// retry, backoff and rate-limit-aware pacing.
//
// The crawler is strictly sequential: one in-flight fetch at a time, so
// backoff and Retry-After signals from the origin are actually honored.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/parcelly/kbrag/internal/core/ports/driven"
	"github.com/parcelly/kbrag/internal/retry"
)

// Ensure Crawler implements the port.
var _ driven.ArticleFetcher = (*Crawler)(nil)

// Default configuration values.
const (
	DefaultMaxPages       = 120
	DefaultRetries        = 5
	DefaultMinDelay       = 250 * time.Millisecond
	DefaultMaxDelay       = 2500 * time.Millisecond
	DefaultRequestTimeout = 15 * time.Second
	DefaultUserAgent      = "parcelly-kbrag/0.1"
)

// Config holds crawler configuration.
type Config struct {
	// Root is the crawl starting point. Its origin bounds the crawl.
	Root string

	// AllowedPrefix is the path prefix pages must live under.
	AllowedPrefix string

	// ArticlePattern marks terminal article pages: paths containing it
	// are collected as results and never expanded.
	ArticlePattern string

	// MaxPages bounds the number of pages visited, so a misconfigured
	// or malicious site cannot produce an unbounded crawl.
	MaxPages int

	// Retries, MinDelay and MaxDelay shape the fetch retry policy.
	Retries  int
	MinDelay time.Duration
	MaxDelay time.Duration

	// RequestTimeout bounds every single fetch.
	RequestTimeout time.Duration

	UserAgent string
}

// Crawler walks the knowledge base.
type Crawler struct {
	cfg     Config
	root    *url.URL
	fetcher *fetcher
	logger  *zap.Logger
}

// New creates a Crawler. The root URL must be absolute; the allowed
// prefix defaults to the root's path.
func New(cfg Config, logger *zap.Logger) (*Crawler, error) {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Retries < 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	root, err := url.Parse(cfg.Root)
	if err != nil || !root.IsAbs() {
		return nil, fmt.Errorf("crawler: invalid root URL %q", cfg.Root)
	}
	if cfg.AllowedPrefix == "" {
		cfg.AllowedPrefix = strings.TrimSuffix(root.Path, "/")
	}

	policy := retry.Policy{
		MaxRetries: cfg.Retries,
		BaseDelay:  cfg.MinDelay,
		MaxDelay:   cfg.MaxDelay,
		Jitter:     retry.PlusMinus20,
	}

	return &Crawler{
		cfg:  cfg,
		root: root,
		fetcher: &fetcher{
			policy:    policy,
			timeout:   cfg.RequestTimeout,
			userAgent: cfg.UserAgent,
			// One request per MinDelay keeps the sequential crawl
			// polite even when every response is fast.
			limiter: rate.NewLimiter(rate.Every(cfg.MinDelay), 1),
		},
		logger: logger,
	}, nil
}

// Discover walks the allow-listed section breadth-first and returns the
// sorted set of article URLs found. A failing page is logged and
// skipped; the crawl only fails when not a single page could be loaded.
func (c *Crawler) Discover(ctx context.Context) ([]string, error) {
	start := normalizeURL(c.root, c.cfg.ArticlePattern)

	queue := []string{start}
	queued := map[string]bool{start: true}
	visited := map[string]bool{}
	articles := map[string]bool{}

	var fetched int
	var lastErr error

	for len(queue) > 0 && len(visited) < c.cfg.MaxPages {
		pageURL := queue[0]
		queue = queue[1:]
		visited[pageURL] = true

		html, err := c.FetchHTML(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Warn("page fetch failed, skipping",
				zap.String("url", pageURL), zap.Error(err))
			continue
		}
		fetched++

		for _, link := range c.pageLinks(pageURL, html) {
			if strings.Contains(link.Path, c.cfg.ArticlePattern) {
				articles[link.String()] = true
				continue
			}
			candidate := link.String()
			if !visited[candidate] && !queued[candidate] {
				queue = append(queue, candidate)
				queued[candidate] = true
			}
		}
	}

	if fetched == 0 && lastErr != nil {
		return nil, fmt.Errorf("discovery failed, no page could be loaded: %w", lastErr)
	}

	urls := make([]string, 0, len(articles))
	for u := range articles {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	c.logger.Info("discovery complete",
		zap.Int("pages_visited", len(visited)),
		zap.Int("articles_found", len(urls)))
	return urls, nil
}

// pageLinks extracts, absolutizes and scopes the links of one page.
func (c *Crawler) pageLinks(pageURL, html string) []*url.URL {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		c.logger.Warn("unparseable page, skipping", zap.String("url", pageURL))
		return nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" ||
			strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "#") {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if !sameOrigin(resolved, c.root) {
			return
		}
		if !strings.HasPrefix(resolved.Path, c.cfg.AllowedPrefix) {
			return
		}

		normalized, err := url.Parse(normalizeURL(resolved, c.cfg.ArticlePattern))
		if err != nil {
			return
		}
		links = append(links, normalized)
	})
	return links
}

// FetchHTML downloads one page, retrying transient failures.
func (c *Crawler) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	return c.fetcher.fetch(ctx, pageURL)
}

// normalizeURL strips fragment noise and tracking parameters: listing
// pages keep only their pagination parameter, article pages carry no
// query at all.
func normalizeURL(u *url.URL, articlePattern string) string {
	n := *u
	n.Fragment = ""

	q := n.Query()
	switch {
	case q.Has("page"):
		page := q.Get("page")
		n.RawQuery = ""
		if page != "" {
			n.RawQuery = url.Values{"page": []string{page}}.Encode()
		}
	case articlePattern != "" && strings.Contains(n.Path, articlePattern):
		n.RawQuery = ""
	}
	return n.String()
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}
