// Package httpapi exposes the question-answering service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/core/ports/driving"
)

// Limits on the incoming question.
const (
	MinQuestionLen = 3
	MaxQuestionLen = 2000

	maxBodyBytes = 1 << 16
)

// Config holds server configuration.
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	// Models is the vetted list offered on /v1/models; the first entry
	// is the default.
	Models []string
}

// Server serves the chat API.
type Server struct {
	chat   driving.ChatService
	cfg    Config
	log    *zap.Logger
	server *http.Server
}

// New creates the HTTP server.
func New(chat driving.ChatService, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{chat: chat, cfg: cfg, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.withRequestLog(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

type chatRequest struct {
	Question string `json:"question"`
	Mode     string `json:"mode,omitempty"`
	Model    string `json:"model,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}

	question := strings.TrimSpace(req.Question)
	if n := len([]rune(question)); n < MinQuestionLen || n > MaxQuestionLen {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("question must be between %d and %d characters", MinQuestionLen, MaxQuestionLen))
		return
	}

	var mode domain.EmbedMode
	if req.Mode != "" {
		parsed, err := domain.ParseEmbedMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = parsed
	}

	// Only vetted model names reach the backend; anything else falls
	// back to the default.
	model := req.Model
	if !s.allowedModel(model) {
		model = ""
	}

	answer, err := s.chat.Ask(r.Context(), question, mode, model)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.log.With(zap.String("request_id", requestID(r)), zap.Error(err))

	var cfgErr *domain.ConfigError
	switch {
	case errors.Is(err, domain.ErrStoreNotLoaded):
		log.Warn("chat request before index load")
		writeError(w, http.StatusServiceUnavailable, "knowledge base index is not loaded")
	case errors.Is(err, domain.ErrTimeout):
		log.Warn("chat request timed out upstream")
		writeError(w, http.StatusGatewayTimeout, "upstream model timed out")
	case errors.As(err, &cfgErr):
		log.Warn("chat request rejected")
		writeError(w, http.StatusBadRequest, cfgErr.Error())
	default:
		log.Error("chat request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) allowedModel(model string) bool {
	if model == "" {
		return false
	}
	for _, m := range s.cfg.Models {
		if m == model {
			return true
		}
	}
	return false
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.cfg.Models})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
