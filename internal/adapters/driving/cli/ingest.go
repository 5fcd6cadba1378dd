package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parcelly/kbrag/internal/adapters/driven/vectorstore/file"
	"github.com/parcelly/kbrag/internal/chunker"
	"github.com/parcelly/kbrag/internal/core/services"
	"github.com/parcelly/kbrag/internal/crawler"
	"github.com/parcelly/kbrag/internal/extractor"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Crawl the knowledge base and build the vector index",
	Long: `Crawls the configured knowledge base, extracts article text,
splits it into overlapping chunks, embeds every chunk and writes the
resulting vector index to the configured vectors file.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg, log, err := newEnv()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	crawl, err := crawler.New(crawler.Config{
		Root:           cfg.Crawl.Root,
		AllowedPrefix:  cfg.Crawl.AllowedPrefix,
		ArticlePattern: cfg.Crawl.ArticlePattern,
		MaxPages:       cfg.Crawl.MaxPages,
		Retries:        cfg.Crawl.Retries,
		MinDelay:       cfg.Crawl.MinDelay,
		MaxDelay:       cfg.Crawl.MaxDelay,
		RequestTimeout: cfg.Crawl.RequestTimeout,
		UserAgent:      cfg.Crawl.UserAgent,
	}, log)
	if err != nil {
		return err
	}

	ingestor := services.NewIngestService(
		crawl,
		extractor.New(extractor.WithMinBodyChars(cfg.Crawl.MinArticleChars)),
		chunker.New(chunker.WithSize(cfg.Chunk.Size), chunker.WithOverlap(cfg.Chunk.Overlap)),
		newEmbeddingRegistry(cfg),
		file.NewWriter(),
		services.IngestConfig{
			VectorsPath:  cfg.Retrieval.VectorsFile,
			Mode:         cfg.Embed.Provider,
			Concurrency:  cfg.Ingest.Concurrency,
			EmbedRetries: cfg.Embed.Retries,
		},
		log,
	)

	if err := ingestor.Run(cmd.Context()); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	cmd.Printf("Vector index written to %s\n", cfg.Retrieval.VectorsFile)
	return nil
}
