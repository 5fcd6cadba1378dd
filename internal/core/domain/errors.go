package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrTimeout indicates a network operation exceeded its deadline.
	// Kept distinct from transport failures so callers can give
	// different remediation guidance.
	ErrTimeout = errors.New("request timed out")

	// ErrStoreNotLoaded indicates no vector index has been loaded.
	ErrStoreNotLoaded = errors.New("vector store not loaded")
)

// ConfigError reports a misconfiguration: a missing credential, an
// unsupported mode, a malformed setting. Never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// TransientError wraps a failure that is worth retrying with backoff.
// RetryAfter, when non-zero, carries a server-provided wait hint.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// HTTPStatusError reports a non-retriable HTTP response.
type HTTPStatusError struct {
	URL    string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch failed with status %d for %s", e.Status, e.URL)
}

// EmbeddingError reports a failed embedding backend call.
type EmbeddingError struct {
	Backend string
	Model   string
	Status  int
	Detail  string
}

func (e *EmbeddingError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s embeddings error (%s): status %d: %s", e.Backend, e.Model, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s embeddings error (%s): %s", e.Backend, e.Model, e.Detail)
}

// DimensionMismatchError reports a query vector whose dimensionality does
// not match the loaded store. This means the store was built with a
// different embedding provider than is being queried; scoring would be
// meaningless, so the query fails instead.
type DimensionMismatchError struct {
	QueryDim int
	StoreDim int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf(
		"embedding dimension mismatch: query has %d dimensions, store has %d (was the store built with a different provider?)",
		e.QueryDim, e.StoreDim,
	)
}

// StoreValidationError reports a malformed vector store file. Index is
// the offending item position, or -1 for file-level violations.
type StoreValidationError struct {
	Path   string
	Index  int
	Reason string
}

func (e *StoreValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid vector store %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("invalid vector store %s: item %d: %s", e.Path, e.Index, e.Reason)
}
