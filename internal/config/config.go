// Package config loads runtime configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/parcelly/kbrag/internal/core/domain"
)

// CrawlConfig tunes knowledge-base discovery and download.
type CrawlConfig struct {
	Root            string
	AllowedPrefix   string
	ArticlePattern  string
	MaxPages        int
	MinArticleChars int
	UserAgent       string
	Retries         int
	MinDelay        time.Duration
	MaxDelay        time.Duration
	RequestTimeout  time.Duration
}

// ChunkConfig tunes text chunking.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// EmbedConfig tunes the embedding backends.
type EmbedConfig struct {
	Provider       domain.EmbedMode
	RequestTimeout time.Duration
	Retries        int
	LocalDim       int

	GeminiAPIKey   string
	GeminiModel    string
	GeminiMaxChars int

	HFToken    string
	HFBaseURL  string
	HFModel    string
	HFMaxChars int
}

// RetrievalConfig tunes top-K search. MinScore zero disables the
// confidence gate entirely.
type RetrievalConfig struct {
	TopK        int
	MinScore    float64
	VectorsFile string
}

// IngestConfig tunes the offline ingestion job.
type IngestConfig struct {
	Concurrency int
}

// LLMConfig tunes answer generation.
type LLMConfig struct {
	ChatModel      string
	RequestTimeout time.Duration
}

// ServerConfig tunes the HTTP server.
type ServerConfig struct {
	Port int
}

// Config is the full runtime configuration.
type Config struct {
	Crawl     CrawlConfig
	Chunk     ChunkConfig
	Embed     EmbedConfig
	Retrieval RetrievalConfig
	Ingest    IngestConfig
	LLM       LLMConfig
	Server    ServerConfig
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	provider, err := domain.ParseEmbedMode(envString("EMBED_PROVIDER", string(domain.EmbedModeLocal)))
	if err != nil {
		return nil, &domain.ConfigError{Field: "EMBED_PROVIDER", Reason: err.Error()}
	}

	cfg := &Config{
		Crawl: CrawlConfig{
			Root:            envString("KB_ROOT", "https://support.parcelly.io/support/solutions/"),
			AllowedPrefix:   envString("KB_ALLOWED_PREFIX", "/support/solutions"),
			ArticlePattern:  envString("KB_ARTICLE_PATTERN", "/support/solutions/articles/"),
			MaxPages:        envInt("KB_MAX_PAGES", 120),
			MinArticleChars: envInt("KB_MIN_ARTICLE_CHARS", 120),
			UserAgent:       envString("USER_AGENT", "parcelly-kbrag/0.1"),
			Retries:         envInt("SCRAPE_RETRIES", 5),
			MinDelay:        envMillis("SCRAPE_MIN_DELAY_MS", 250*time.Millisecond),
			MaxDelay:        envMillis("SCRAPE_MAX_DELAY_MS", 2500*time.Millisecond),
			RequestTimeout:  envMillis("CRAWL_HTTP_TIMEOUT_MS", 15*time.Second),
		},
		Chunk: ChunkConfig{
			Size:    envInt("CHUNK_SIZE_CHARS", 950),
			Overlap: envInt("CHUNK_OVERLAP_CHARS", 200),
		},
		Embed: EmbedConfig{
			Provider:       provider,
			RequestTimeout: envMillis("EMBED_HTTP_TIMEOUT_MS", 15*time.Second),
			Retries:        envInt("EMBED_RETRIES", 2),
			LocalDim:       envInt("EMBED_LOCAL_DIM", 512),
			GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
			GeminiModel:    envString("GEMINI_EMBED_MODEL", "gemini-embedding-001"),
			GeminiMaxChars: envInt("GEMINI_EMBED_MAX_CHARS", 8000),
			HFToken:        os.Getenv("HF_API_TOKEN"),
			HFBaseURL:      envString("HF_BASE_URL", "https://api-inference.huggingface.co"),
			HFModel:        envString("HF_EMBED_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
			HFMaxChars:     envInt("HF_EMBED_MAX_CHARS", 4000),
		},
		Retrieval: RetrievalConfig{
			TopK:        envInt("TOP_K", 6),
			MinScore:    envFloat("MIN_SCORE", 0.78),
			VectorsFile: envString("VECTORS_FILE", "./data/vectors.json"),
		},
		Ingest: IngestConfig{
			Concurrency: envInt("INGEST_CONCURRENCY", 3),
		},
		LLM: LLMConfig{
			ChatModel:      envString("GEMINI_CHAT_MODEL", "gemini-2.5-flash"),
			RequestTimeout: envMillis("LLM_HTTP_TIMEOUT_MS", 20*time.Second),
		},
		Server: ServerConfig{
			Port: envInt("PORT", 8080),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Crawl.Root) == "" {
		return &domain.ConfigError{Field: "KB_ROOT", Reason: "must not be empty"}
	}
	if c.Crawl.MinDelay > c.Crawl.MaxDelay {
		return &domain.ConfigError{
			Field:  "SCRAPE_MIN_DELAY_MS",
			Reason: fmt.Sprintf("minimum delay %s exceeds maximum %s", c.Crawl.MinDelay, c.Crawl.MaxDelay),
		}
	}
	if c.Chunk.Overlap >= c.Chunk.Size {
		return &domain.ConfigError{
			Field:  "CHUNK_OVERLAP_CHARS",
			Reason: fmt.Sprintf("overlap %d must be smaller than chunk size %d", c.Chunk.Overlap, c.Chunk.Size),
		}
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return &domain.ConfigError{Field: "MIN_SCORE", Reason: "must be within [0, 1]"}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "PORT", Reason: "must be a valid TCP port"}
	}
	return nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envMillis(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
