package driven

import (
	"context"

	"github.com/parcelly/kbrag/internal/core/domain"
)

// ArticleFetcher discovers and downloads knowledge-base pages.
type ArticleFetcher interface {
	// Discover walks the knowledge base and returns the normalized,
	// deduplicated article URLs it found.
	Discover(ctx context.Context) ([]string, error)

	// FetchHTML downloads one page, retrying transient failures with
	// backoff. A permanent failure is returned after retries exhaust.
	FetchHTML(ctx context.Context, url string) (string, error)
}

// ArticleExtractor turns raw page markup into cleaned article text.
// ok is false when the page is not a real article (empty template,
// navigation page) and should be skipped without error.
type ArticleExtractor interface {
	Parse(html string) (article *domain.ParsedArticle, ok bool)
}

// TextChunker splits cleaned article text into embedding-sized pieces.
type TextChunker interface {
	Chunk(text string) []string
}
