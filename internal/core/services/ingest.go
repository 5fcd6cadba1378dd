package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/core/ports/driven"
	"github.com/parcelly/kbrag/internal/core/ports/driving"
	"github.com/parcelly/kbrag/internal/retry"
)

// Ensure IngestService implements the driving port.
var _ driving.Ingestor = (*IngestService)(nil)

// Default ingestion tuning.
const (
	DefaultConcurrency     = 3
	DefaultEmbedRetries    = 2
	DefaultEmbedRetryDelay = 250 * time.Millisecond
)

// IngestConfig holds ingestion tuning.
type IngestConfig struct {
	// VectorsPath is where the index is written.
	VectorsPath string

	// Mode selects the embedding backend; zero uses the default.
	Mode domain.EmbedMode

	// Concurrency bounds how many articles are processed at once.
	Concurrency int

	// EmbedRetries and EmbedRetryDelay tune the linear backoff applied
	// to transient embedding failures.
	EmbedRetries    int
	EmbedRetryDelay time.Duration
}

// IngestService runs the offline pipeline: discover article URLs, fetch
// and extract each article, chunk the text, embed every chunk and write
// the whole index in one shot. Re-running replaces the index atomically
// from the reader's point of view.
type IngestService struct {
	fetcher   driven.ArticleFetcher
	extractor driven.ArticleExtractor
	chunker   driven.TextChunker
	resolver  driven.EmbeddingResolver
	writer    driven.VectorWriter
	cfg       IngestConfig
	log       *zap.Logger
}

// NewIngestService creates the ingestion service.
func NewIngestService(
	fetcher driven.ArticleFetcher,
	extractor driven.ArticleExtractor,
	chunker driven.TextChunker,
	resolver driven.EmbeddingResolver,
	writer driven.VectorWriter,
	cfg IngestConfig,
	log *zap.Logger,
) *IngestService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.EmbedRetries < 0 {
		cfg.EmbedRetries = DefaultEmbedRetries
	}
	if cfg.EmbedRetryDelay <= 0 {
		cfg.EmbedRetryDelay = DefaultEmbedRetryDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestService{
		fetcher:   fetcher,
		extractor: extractor,
		chunker:   chunker,
		resolver:  resolver,
		writer:    writer,
		cfg:       cfg,
		log:       log,
	}
}

// Run executes the full ingestion job. A single article failing to
// download, parse or embed is skipped with a warning; the job only
// fails when nothing at all could be indexed.
func (s *IngestService) Run(ctx context.Context) error {
	embedder, err := s.resolver.Resolve(s.cfg.Mode)
	if err != nil {
		return err
	}

	urls, err := s.fetcher.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover articles: %w", err)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no article URLs discovered")
	}
	s.log.Info("discovered articles",
		zap.Int("count", len(urls)),
		zap.String("embedder", embedder.Name()))

	policy := retry.Policy{
		MaxRetries: s.cfg.EmbedRetries,
		BaseDelay:  s.cfg.EmbedRetryDelay,
		MaxDelay:   10 * s.cfg.EmbedRetryDelay,
		Strategy:   retry.Linear,
	}

	// Results are indexed by URL position so the written index is
	// deterministic regardless of worker scheduling.
	perURL := make([][]domain.VectorItem, len(urls))
	var mu sync.Mutex
	var done int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for i, url := range urls {
		g.Go(func() error {
			items, err := s.ingestArticle(gctx, embedder, policy, url)
			if err != nil {
				return err
			}

			mu.Lock()
			perURL[i] = items
			done++
			if done%10 == 0 {
				s.log.Info("ingestion progress", zap.Int("done", done), zap.Int("total", len(urls)))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var items []domain.VectorItem
	for _, batch := range perURL {
		items = append(items, batch...)
	}
	if len(items) == 0 {
		return fmt.Errorf("no articles yielded content; nothing to index")
	}

	vf := &domain.VectorsFile{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Items:     items,
	}
	if err := s.writer.Write(s.cfg.VectorsPath, vf); err != nil {
		return err
	}
	s.log.Info("vector index written",
		zap.String("path", s.cfg.VectorsPath),
		zap.Int("chunks", len(items)))
	return nil
}

// ingestArticle processes one URL into its embedded chunks. Any failure
// abandons this article only; the error return is reserved for context
// cancellation.
func (s *IngestService) ingestArticle(ctx context.Context, embedder driven.EmbeddingService, policy retry.Policy, url string) ([]domain.VectorItem, error) {
	html, err := s.fetcher.FetchHTML(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("skipping article: download failed", zap.String("url", url), zap.Error(err))
		return nil, nil
	}

	article, ok := s.extractor.Parse(html)
	if !ok {
		s.log.Warn("skipping article: no usable content", zap.String("url", url))
		return nil, nil
	}

	chunks := s.chunker.Chunk(article.BodyText)
	items := make([]domain.VectorItem, 0, len(chunks))
	for idx, chunk := range chunks {
		var vec []float64
		err := policy.Do(ctx, func(ctx context.Context) error {
			var embedErr error
			vec, embedErr = embedder.Embed(ctx, chunk, domain.TaskDocument)
			return embedErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("skipping article: embedding failed",
				zap.String("url", url), zap.Int("chunk", idx), zap.Error(err))
			return nil, nil
		}
		items = append(items, domain.VectorItem{
			ID:        chunkID(url, idx),
			URL:       url,
			Title:     article.Title,
			Chunk:     chunk,
			Embedding: vec,
		})
	}
	return items, nil
}

// chunkID derives a stable identifier from the article URL and chunk
// position, so re-ingesting unchanged content keeps the same IDs.
func chunkID(url string, index int) string {
	return base64.RawURLEncoding.EncodeToString(fmt.Appendf(nil, "%s#%d", url, index))
}
