// Package gemini provides an embedding adapter for the hosted Gemini
// embedding API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/core/ports/driven"
)

// Ensure Service implements the interface.
var _ driven.EmbeddingService = (*Service)(nil)

// Default configuration values.
const (
	DefaultBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-embedding-001"
	DefaultMaxChars = 8000
	DefaultTimeout  = 15 * time.Second
)

// Config holds configuration for the Gemini embedding service.
type Config struct {
	// APIKey is required; its absence is a configuration error.
	APIKey string

	// BaseURL is the API base (default: the public endpoint).
	BaseURL string

	// Model is the embedding model identifier.
	Model string

	// MaxChars truncates input before sending, since the backend
	// imposes input-length limits.
	MaxChars int

	// Timeout bounds each request.
	Timeout time.Duration
}

// Service generates embeddings using the Gemini API.
type Service struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	model    string
	maxChars int
	timeout  time.Duration
}

type embedRequest struct {
	Content  content `json:"content"`
	TaskType string  `json:"taskType"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

// New creates a Gemini embedding service.
func New(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &domain.ConfigError{Field: "GEMINI_API_KEY", Reason: "required for the gemini embedding backend"}
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
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    cfg.Model,
		maxChars: cfg.MaxChars,
		timeout:  cfg.Timeout,
	}, nil
}

// Name identifies the backend.
func (s *Service) Name() string { return "gemini" }

// Embed generates a vector for text in the given role. Gemini computes
// different vectors for documents and queries, so the task is sent
// verbatim as taskType.
func (s *Service) Embed(ctx context.Context, text string, task domain.EmbeddingTask) ([]float64, error) {
	if runes := []rune(text); len(runes) > s.maxChars {
		text = string(runes[:s.maxChars])
	}

	body, err := json.Marshal(embedRequest{
		Content:  content{Parts: []part{{Text: text}}},
		TaskType: string(task),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent?key=%s",
		s.baseURL, url.PathEscape(s.model), url.QueryEscape(s.apiKey))

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &domain.TransientError{
				Err: fmt.Errorf("gemini embeddings (%s): %w after %s", s.model, domain.ErrTimeout, s.timeout),
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.TransientError{Err: fmt.Errorf("gemini embeddings (%s): %w", s.model, err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		embedErr := &domain.EmbeddingError{
			Backend: "gemini",
			Model:   s.model,
			Status:  resp.StatusCode,
			Detail:  strings.TrimSpace(string(payload)),
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &domain.TransientError{Err: embedErr}
		}
		return nil, embedErr
	}

	var out embedResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, &domain.EmbeddingError{Backend: "gemini", Model: s.model, Detail: "unparseable response"}
	}
	if len(out.Embedding.Values) == 0 {
		return nil, &domain.EmbeddingError{Backend: "gemini", Model: s.model, Detail: "response missing vector"}
	}
	return out.Embedding.Values, nil
}
