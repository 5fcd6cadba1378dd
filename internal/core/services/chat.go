package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/core/ports/driven"
	"github.com/parcelly/kbrag/internal/core/ports/driving"
)

// Ensure Chat implements the driving port.
var _ driving.ChatService = (*Chat)(nil)

// ChatConfig holds chat tuning.
type ChatConfig struct {
	// DefaultModel is used when a request does not name one.
	DefaultModel string
}

// Chat answers questions strictly from the knowledge base: retrieval
// decides whether an answer exists at all, and the model only rephrases
// what retrieval produced.
type Chat struct {
	retriever driving.Retriever
	llm       driven.LLMService
	cfg       ChatConfig
	log       *zap.Logger
}

// NewChat creates the chat service.
func NewChat(retriever driving.Retriever, llm driven.LLMService, cfg ChatConfig, log *zap.Logger) *Chat {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chat{retriever: retriever, llm: llm, cfg: cfg, log: log}
}

// Ask retrieves context for the question and generates a grounded
// answer. A below-gate retrieval yields the refusal answer with low
// confidence instead of a hallucinated one.
func (c *Chat) Ask(ctx context.Context, question string, mode domain.EmbedMode, model string) (driving.ChatAnswer, error) {
	question = strings.TrimSpace(question)
	if model == "" {
		model = c.cfg.DefaultModel
	}

	res, err := c.retriever.RetrieveTopK(ctx, question, mode)
	if err != nil {
		return driving.ChatAnswer{}, err
	}
	if !res.OK {
		c.log.Info("declining to answer", zap.Float64("top_score", res.TopScore))
		return driving.ChatAnswer{
			Answer:     RefusalMessage,
			Sources:    []domain.Source{},
			Confidence: "low",
			TopScore:   res.TopScore,
		}, nil
	}

	answer, err := c.llm.Generate(ctx, BuildPrompt(question, res.Context), model)
	if err != nil {
		return driving.ChatAnswer{}, fmt.Errorf("generate answer: %w", err)
	}

	return driving.ChatAnswer{
		Answer:     strings.TrimSpace(answer),
		Sources:    res.Sources,
		Confidence: "high",
		TopScore:   res.TopScore,
	}, nil
}
