package cli

import (
	"go.uber.org/zap"

	"github.com/parcelly/kbrag/internal/adapters/driven/embedding"
	embgemini "github.com/parcelly/kbrag/internal/adapters/driven/embedding/gemini"
	"github.com/parcelly/kbrag/internal/adapters/driven/embedding/hf"
	"github.com/parcelly/kbrag/internal/adapters/driven/embedding/local"
	"github.com/parcelly/kbrag/internal/config"
	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/core/ports/driven"
	"github.com/parcelly/kbrag/internal/logger"
)

// newEnv loads configuration and builds the logger shared by all
// commands.
func newEnv() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// newEmbeddingRegistry registers all embedding backends. Backends are
// constructed lazily, so a missing credential only matters when its
// mode is actually selected.
func newEmbeddingRegistry(cfg *config.Config) *embedding.Registry {
	reg := embedding.NewRegistry(cfg.Embed.Provider)
	reg.Register(domain.EmbedModeLocal, func() (driven.EmbeddingService, error) {
		return local.New(local.Config{Dimensions: cfg.Embed.LocalDim}), nil
	})
	reg.Register(domain.EmbedModeGemini, func() (driven.EmbeddingService, error) {
		return embgemini.New(embgemini.Config{
			APIKey:   cfg.Embed.GeminiAPIKey,
			Model:    cfg.Embed.GeminiModel,
			MaxChars: cfg.Embed.GeminiMaxChars,
			Timeout:  cfg.Embed.RequestTimeout,
		})
	})
	reg.Register(domain.EmbedModeHF, func() (driven.EmbeddingService, error) {
		return hf.New(hf.Config{
			Token:    cfg.Embed.HFToken,
			BaseURL:  cfg.Embed.HFBaseURL,
			Model:    cfg.Embed.HFModel,
			MaxChars: cfg.Embed.HFMaxChars,
			Timeout:  cfg.Embed.RequestTimeout,
		})
	})
	return reg
}
