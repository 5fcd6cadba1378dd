package driven

import (
	"context"

	"github.com/parcelly/kbrag/internal/core/domain"
)

// EmbeddingService converts text into a fixed-length vector.
//
// Implementations must bound every remote call with a timeout and surface
// it as domain.ErrTimeout, so the serving layer can distinguish a slow
// backend from an unreachable one.
type EmbeddingService interface {
	// Embed returns the embedding for text. The task tells backends
	// whether the text is a stored document or an incoming query;
	// some models produce different vectors for each role.
	Embed(ctx context.Context, text string, task domain.EmbeddingTask) ([]float64, error)

	// Name identifies the backend in logs and error messages.
	Name() string
}

// EmbeddingResolver maps an embed mode to its backend. Resolving an
// unknown mode is a configuration error.
type EmbeddingResolver interface {
	Resolve(mode domain.EmbedMode) (EmbeddingService, error)

	// DefaultMode is the process-wide mode used when a caller does not
	// override it per request.
	DefaultMode() domain.EmbedMode
}
