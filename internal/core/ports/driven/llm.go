package driven

import "context"

// LLMService generates an answer from a fully built prompt.
// The model identifier is threaded through so callers can offer a
// vetted list of models per request.
type LLMService interface {
	Generate(ctx context.Context, prompt, model string) (string, error)
	Name() string
}
