package domain

import "fmt"

// EmbeddingTask tells a backend which role a vector plays. Some backends
// compute different vectors for documents and queries even for identical
// text, so the intent must be threaded through every call.
type EmbeddingTask string

const (
	// TaskDocument marks text embedded at ingestion time.
	TaskDocument EmbeddingTask = "RETRIEVAL_DOCUMENT"

	// TaskQuery marks an incoming question embedded at retrieval time.
	TaskQuery EmbeddingTask = "RETRIEVAL_QUERY"
)

// EmbedMode selects one of the interchangeable embedding backends.
// The set is closed: adding a backend means adding a constant here and a
// case to every switch over the type.
type EmbedMode string

const (
	// EmbedModeGemini calls the hosted Gemini embedding API.
	EmbedModeGemini EmbedMode = "gemini"

	// EmbedModeHF calls a Hugging Face style inference service.
	EmbedModeHF EmbedMode = "hf"

	// EmbedModeLocal derives vectors by hashing tokens on the CPU.
	// No network access; a degraded but always-available fallback.
	EmbedModeLocal EmbedMode = "local"
)

// ParseEmbedMode validates a user-supplied mode string. An unknown value
// is a configuration error, never a silent fallback.
func ParseEmbedMode(s string) (EmbedMode, error) {
	switch EmbedMode(s) {
	case EmbedModeGemini, EmbedModeHF, EmbedModeLocal:
		return EmbedMode(s), nil
	default:
		return "", &ConfigError{
			Field:  "embed mode",
			Reason: fmt.Sprintf("unsupported value %q (use gemini, hf or local)", s),
		}
	}
}
