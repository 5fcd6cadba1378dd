package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	llmgemini "github.com/parcelly/kbrag/internal/adapters/driven/llm/gemini"
	"github.com/parcelly/kbrag/internal/adapters/driven/vectorstore/file"
	"github.com/parcelly/kbrag/internal/adapters/driving/httpapi"
	"github.com/parcelly/kbrag/internal/core/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question-answering API",
	Long: `Loads and validates the vector index, then serves the HTTP
question-answering API until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := newEnv()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := file.Open(cfg.Retrieval.VectorsFile)
	if err != nil {
		return fmt.Errorf("load vector index (run \"kbrag ingest\" first): %w", err)
	}
	log.Info("vector index loaded",
		zap.String("path", cfg.Retrieval.VectorsFile),
		zap.Int("chunks", len(store.Get().Items)),
		zap.Int("dimensions", store.Get().Dimensions()))

	retriever := services.NewRetrievalService(
		newEmbeddingRegistry(cfg),
		store,
		services.RetrievalConfig{TopK: cfg.Retrieval.TopK, MinScore: cfg.Retrieval.MinScore},
		log,
	)

	llm, err := llmgemini.New(llmgemini.Config{
		APIKey:      cfg.Embed.GeminiAPIKey,
		Model:       cfg.LLM.ChatModel,
		Timeout:     cfg.LLM.RequestTimeout,
		EmptyAnswer: services.RefusalMessage,
	})
	if err != nil {
		return err
	}

	chat := services.NewChat(retriever, llm, services.ChatConfig{DefaultModel: cfg.LLM.ChatModel}, log)

	server := httpapi.New(chat, httpapi.Config{
		Port:   cfg.Server.Port,
		Models: []string{cfg.LLM.ChatModel},
	}, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
