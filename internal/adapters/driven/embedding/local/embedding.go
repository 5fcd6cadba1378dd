// Package local provides an embedding backend that needs no network
// access: token hashing into a fixed-size accumulator. It trades
// semantic quality for availability and serves as the degraded/offline
// fallback.
package local

import (
	"context"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/core/ports/driven"
)

// Ensure Service implements the interface.
var _ driven.EmbeddingService = (*Service)(nil)

// DefaultDimensions is the default vector size.
const DefaultDimensions = 512

// FNV-1a parameters, used for both hash streams.
const (
	fnvOffset uint32 = 2166136261
	fnvPrime  uint32 = 16777619
)

// Config holds configuration for the local embedder.
type Config struct {
	// Dimensions is the accumulator size (default 512).
	Dimensions int
}

// Service hashes normalized tokens into a signed accumulator: one hash
// stream picks the bucket, an independent one picks the sign, and the
// result is L2-normalized. Deterministic for identical input.
type Service struct {
	dim int
}

// New creates a local embedding service.
func New(cfg Config) *Service {
	dim := cfg.Dimensions
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &Service{dim: dim}
}

// Name identifies the backend.
func (s *Service) Name() string { return "local" }

// Embed derives a fixed-dimension vector from text. The task role is
// irrelevant: documents and queries hash identically.
func (s *Service) Embed(_ context.Context, text string, _ domain.EmbeddingTask) ([]float64, error) {
	vec := make([]float64, s.dim)
	for _, token := range s.tokenize(text) {
		h1 := fnvOffset
		h2 := fnvOffset
		for _, r := range token {
			c := uint32(r)
			h1 = (h1 ^ c) * fnvPrime
			h2 = (h2 ^ (c + 13)) * fnvPrime
		}
		idx := int(h1 % uint32(s.dim))
		if h2&1 == 0 {
			vec[idx]++
		} else {
			vec[idx]--
		}
	}
	normalize(vec)
	return vec, nil
}

// tokenize lower-cases, strips diacritics, collapses non-alphanumerics
// to whitespace and drops tokens shorter than two characters.
func (s *Service) tokenize(text string) []string {
	text = strings.ToLower(text)
	// Transformers carry internal buffers, so build the chain per call;
	// Embed must stay safe for concurrent use by ingest workers.
	deaccenter := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	if folded, _, err := transform.String(deaccenter, text); err == nil {
		text = folded
	}
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, text)

	fields := strings.Fields(text)
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func normalize(vec []float64) {
	var sum float64
	for _, x := range vec {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] *= inv
	}
}
