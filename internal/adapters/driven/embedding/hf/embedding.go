// Package hf provides an embedding adapter for Hugging Face style
// inference services exposing feature-extraction endpoints.
package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/core/ports/driven"
)

// Ensure Service implements the interface.
var _ driven.EmbeddingService = (*Service)(nil)

// Default configuration values.
const (
	DefaultBaseURL  = "https://api-inference.huggingface.co"
	DefaultModel    = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultMaxChars = 4000
	DefaultTimeout  = 15 * time.Second
)

// Config holds configuration for the inference-service embedder.
type Config struct {
	// Token is required; its absence is a configuration error.
	Token string

	BaseURL string
	Model   string

	// MaxChars truncates input before sending.
	MaxChars int

	// Timeout bounds each request.
	Timeout time.Duration
}

// Service generates embeddings via a hosted inference endpoint.
type Service struct {
	client   *http.Client
	baseURL  string
	token    string
	model    string
	maxChars int
	timeout  time.Duration
}

// New creates an inference-service embedder.
func New(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, &domain.ConfigError{Field: "HF_API_TOKEN", Reason: "required for the hf embedding backend"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Service{
		client:   &http.Client{},
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		token:    strings.TrimSpace(cfg.Token),
		model:    cfg.Model,
		maxChars: cfg.MaxChars,
		timeout:  cfg.Timeout,
	}, nil
}

// Name identifies the backend.
func (s *Service) Name() string { return "hf" }

// Embed generates a vector for text. The inference service computes the
// same vector for documents and queries, so the task is accepted for
// interface compatibility and otherwise unused.
func (s *Service) Embed(ctx context.Context, text string, _ domain.EmbeddingTask) ([]float64, error) {
	if runes := []rune(text); len(runes) > s.maxChars {
		text = string(runes[:s.maxChars])
	}

	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := s.baseURL + "/models/" + s.model

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &domain.TransientError{
				Err: fmt.Errorf("hf embeddings (%s): %w after %s", s.model, domain.ErrTimeout, s.timeout),
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.TransientError{Err: fmt.Errorf("hf embeddings (%s): %w", s.model, err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		embedErr := &domain.EmbeddingError{
			Backend: "hf",
			Model:   s.model,
			Status:  resp.StatusCode,
			Detail:  strings.TrimSpace(string(payload)),
		}
		// 503 is the service's "model is loading" signal.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &domain.TransientError{Err: embedErr}
		}
		return nil, embedErr
	}

	vec, err := parseVector(payload)
	if err != nil {
		return nil, &domain.EmbeddingError{Backend: "hf", Model: s.model, Detail: err.Error()}
	}
	return vec, nil
}
