package driving

import (
	"context"

	"github.com/parcelly/kbrag/internal/core/domain"
)

// Ingestor runs the offline crawl-extract-chunk-embed job and persists
// the resulting vector index.
type Ingestor interface {
	Run(ctx context.Context) error
}

// Retriever answers similarity queries against the loaded vector index.
// A zero mode selects the configured default backend.
type Retriever interface {
	RetrieveTopK(ctx context.Context, question string, mode domain.EmbedMode) (domain.RetrievalResult, error)
}

// ChatAnswer is the outcome of one question.
type ChatAnswer struct {
	Answer     string          `json:"answer"`
	Sources    []domain.Source `json:"sources"`
	Confidence string          `json:"confidence"`
	TopScore   float64         `json:"top_score"`
}

// ChatService answers questions strictly from retrieved context.
type ChatService interface {
	Ask(ctx context.Context, question string, mode domain.EmbedMode, model string) (ChatAnswer, error)
}
