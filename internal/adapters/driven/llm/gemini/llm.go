// Package gemini provides the chat completion adapter for the Gemini
// generateContent API.
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
var _ driven.LLMService = (*Service)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash"
	DefaultTimeout = 20 * time.Second

	// Grounded answers should be near-deterministic.
	temperature = 0.2
)

// Config holds configuration for the chat adapter.
type Config struct {
	// APIKey is required; its absence is a configuration error.
	APIKey string

	BaseURL string

	// Model is the fallback when a request does not name one.
	Model string

	// Timeout bounds each request.
	Timeout time.Duration

	// EmptyAnswer is returned when the model produces no text at all,
	// which happens when safety filters swallow the candidate.
	EmptyAnswer string
}

// Service generates answers via the Gemini generateContent endpoint.
type Service struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	model       string
	timeout     time.Duration
	emptyAnswer string
}

// New creates a Gemini chat service.
func New(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &domain.ConfigError{Field: "GEMINI_API_KEY", Reason: "required for answer generation"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Service{
		client:      &http.Client{},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		emptyAnswer: cfg.EmptyAnswer,
	}, nil
}

// Name identifies the backend.
func (s *Service) Name() string { return "gemini" }

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate produces an answer for the prompt. An empty model falls back
// to the configured default.
func (s *Service) Generate(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = s.model
	}

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		s.baseURL, url.PathEscape(model), url.QueryEscape(s.apiKey))

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("gemini chat (%s): %w after %s", model, domain.ErrTimeout, s.timeout)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("gemini chat (%s): %w", model, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini chat (%s): status %d: %s", model, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed generateResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var b strings.Builder
	if len(parsed.Candidates) > 0 {
		for _, p := range parsed.Candidates[0].Content.Parts {
			b.WriteString(p.Text)
		}
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return s.emptyAnswer, nil
	}
	return answer, nil
}
