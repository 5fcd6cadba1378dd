package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelly/kbrag/internal/core/domain"
)

// fakeFetcher serves canned pages and records fetch order.
type fakeFetcher struct {
	mu       sync.Mutex
	urls     []string
	pages    map[string]string
	fetchErr map[string]error
	fetched  []string
}

func (f *fakeFetcher) Discover(context.Context) ([]string, error) {
	return f.urls, nil
}

func (f *fakeFetcher) FetchHTML(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	if err, ok := f.fetchErr[url]; ok {
		return "", err
	}
	return f.pages[url], nil
}

// fakeExtractor treats the page body as "title|body text".
type fakeExtractor struct{}

func (fakeExtractor) Parse(html string) (*domain.ParsedArticle, bool) {
	title, body, ok := strings.Cut(html, "|")
	if !ok || body == "" {
		return nil, false
	}
	return &domain.ParsedArticle{Title: title, BodyText: body}, true
}

// sentenceChunker splits on ". " so tests control chunk counts.
type sentenceChunker struct{}

func (sentenceChunker) Chunk(text string) []string {
	var chunks []string
	for _, part := range strings.Split(text, ". ") {
		if part = strings.TrimSpace(part); part != "" {
			chunks = append(chunks, part)
		}
	}
	return chunks
}

// captureWriter records the written index.
type captureWriter struct {
	path string
	vf   *domain.VectorsFile
	err  error
}

func (w *captureWriter) Write(path string, vf *domain.VectorsFile) error {
	w.path = path
	w.vf = vf
	return w.err
}

// countingEmbedder embeds everything to a fixed vector, optionally
// failing a given text a number of times first.
type countingEmbedder struct {
	mu         sync.Mutex
	calls      map[string]int
	failText   string
	failTimes  int
	permanent  error
	embedded   int
	concurrent int
	peak       int
}

func (e *countingEmbedder) Embed(_ context.Context, text string, _ domain.EmbeddingTask) ([]float64, error) {
	e.mu.Lock()
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	e.calls[text]++
	n := e.calls[text]
	e.concurrent++
	if e.concurrent > e.peak {
		e.peak = e.concurrent
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.concurrent--
		e.mu.Unlock()
	}()

	if e.permanent != nil {
		return nil, e.permanent
	}
	if text == e.failText && n <= e.failTimes {
		return nil, &domain.TransientError{Err: errors.New("backend hiccup")}
	}
	e.mu.Lock()
	e.embedded++
	e.mu.Unlock()
	return []float64{0.5, 0.5}, nil
}

func (e *countingEmbedder) Name() string { return "fake" }

func newTestIngest(fetcher *fakeFetcher, embedder *countingEmbedder, writer *captureWriter, cfg IngestConfig) *IngestService {
	if cfg.VectorsPath == "" {
		cfg.VectorsPath = "data/vectors.json"
	}
	return NewIngestService(
		fetcher,
		fakeExtractor{},
		sentenceChunker{},
		&fakeResolver{svc: embedder},
		writer,
		cfg,
		nil,
	)
}

func TestRun_BuildsIndexInDiscoveryOrder(t *testing.T) {
	fetcher := &fakeFetcher{
		urls: []string{"https://kb.test/a/1", "https://kb.test/a/2"},
		pages: map[string]string{
			"https://kb.test/a/1": "Pickups|Book online. Weekdays only",
			"https://kb.test/a/2": "Returns|Print the label",
		},
	}
	writer := &captureWriter{}
	embedder := &countingEmbedder{}

	err := newTestIngest(fetcher, embedder, writer, IngestConfig{Concurrency: 2}).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, writer.vf)
	assert.Equal(t, "data/vectors.json", writer.path)
	assert.NotEmpty(t, writer.vf.CreatedAt)

	require.Len(t, writer.vf.Items, 3)
	ids := []string{writer.vf.Items[0].ID, writer.vf.Items[1].ID, writer.vf.Items[2].ID}
	assert.Equal(t, []string{
		base64.RawURLEncoding.EncodeToString([]byte("https://kb.test/a/1#0")),
		base64.RawURLEncoding.EncodeToString([]byte("https://kb.test/a/1#1")),
		base64.RawURLEncoding.EncodeToString([]byte("https://kb.test/a/2#0")),
	}, ids)

	first := writer.vf.Items[0]
	assert.Equal(t, "https://kb.test/a/1", first.URL)
	assert.Equal(t, "Pickups", first.Title)
	assert.Equal(t, "Book online", first.Chunk)
	assert.Equal(t, []float64{0.5, 0.5}, first.Embedding)
}

func TestRun_SkipsFailedAndEmptyPages(t *testing.T) {
	fetcher := &fakeFetcher{
		urls: []string{"https://kb.test/a/1", "https://kb.test/a/2", "https://kb.test/a/3"},
		pages: map[string]string{
			"https://kb.test/a/1": "Pickups|Book online",
			"https://kb.test/a/3": "no-separator-so-not-an-article",
		},
		fetchErr: map[string]error{
			"https://kb.test/a/2": &domain.HTTPStatusError{URL: "https://kb.test/a/2", Status: 410},
		},
	}
	writer := &captureWriter{}

	err := newTestIngest(fetcher, &countingEmbedder{}, writer, IngestConfig{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, writer.vf.Items, 1)
	assert.Equal(t, "https://kb.test/a/1", writer.vf.Items[0].URL)
}

func TestRun_NothingToIndexIsAnError(t *testing.T) {
	fetcher := &fakeFetcher{
		urls:  []string{"https://kb.test/a/1"},
		pages: map[string]string{"https://kb.test/a/1": "not-an-article"},
	}
	writer := &captureWriter{}

	err := newTestIngest(fetcher, &countingEmbedder{}, writer, IngestConfig{}).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, writer.vf, "no index must be written")
}

func TestRun_RetriesTransientEmbedFailures(t *testing.T) {
	fetcher := &fakeFetcher{
		urls:  []string{"https://kb.test/a/1"},
		pages: map[string]string{"https://kb.test/a/1": "Pickups|Book online"},
	}
	embedder := &countingEmbedder{failText: "Book online", failTimes: 2}
	writer := &captureWriter{}

	err := newTestIngest(fetcher, embedder, writer, IngestConfig{EmbedRetries: 2, EmbedRetryDelay: 1}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, embedder.calls["Book online"])
	require.Len(t, writer.vf.Items, 1)
}

func TestRun_EmbedFailureSkipsArticleOnly(t *testing.T) {
	fetcher := &fakeFetcher{
		urls: []string{"https://kb.test/a/1", "https://kb.test/a/2"},
		pages: map[string]string{
			"https://kb.test/a/1": "Pickups|Book online",
			"https://kb.test/a/2": "Returns|Print the label",
		},
	}
	embedder := &countingEmbedder{failText: "Book online", failTimes: 10}
	writer := &captureWriter{}

	err := newTestIngest(fetcher, embedder, writer, IngestConfig{EmbedRetries: 1, EmbedRetryDelay: 1}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.calls["Book online"], "one retry, then the article is abandoned")
	require.Len(t, writer.vf.Items, 1)
	assert.Equal(t, "https://kb.test/a/2", writer.vf.Items[0].URL)
}

func TestRun_PermanentEmbedFailureNotRetried(t *testing.T) {
	fetcher := &fakeFetcher{
		urls:  []string{"https://kb.test/a/1"},
		pages: map[string]string{"https://kb.test/a/1": "Pickups|Book online"},
	}
	embedder := &countingEmbedder{permanent: &domain.EmbeddingError{Backend: "fake", Detail: "bad input"}}
	writer := &captureWriter{}

	err := newTestIngest(fetcher, embedder, writer, IngestConfig{EmbedRetryDelay: 1}).Run(context.Background())
	require.Error(t, err, "the only article failed, so there is nothing to index")
	assert.Equal(t, 1, embedder.calls["Book online"], "permanent errors must not be retried")
	assert.Nil(t, writer.vf)
}

func TestRun_ResolverFailureSurfacesBeforeCrawling(t *testing.T) {
	fetcher := &fakeFetcher{urls: []string{"https://kb.test/a/1"}}
	svc := NewIngestService(
		fetcher,
		fakeExtractor{},
		sentenceChunker{},
		&fakeResolver{err: &domain.ConfigError{Field: "GEMINI_API_KEY", Reason: "required"}},
		&captureWriter{},
		IngestConfig{},
		nil,
	)

	err := svc.Run(context.Background())
	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, fetcher.fetched, "no pages should be fetched when the backend cannot be built")
}
