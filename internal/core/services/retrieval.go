package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/parcelly/kbrag/internal/core/domain"
	"github.com/parcelly/kbrag/internal/core/ports/driven"
	"github.com/parcelly/kbrag/internal/core/ports/driving"
)

// Ensure RetrievalService implements the driving port.
var _ driving.Retriever = (*RetrievalService)(nil)

// Default retrieval tuning.
const (
	DefaultTopK     = 6
	DefaultMinScore = 0.78
)

// RetrievalConfig holds retrieval tuning.
type RetrievalConfig struct {
	// TopK is the number of chunks assembled into the context.
	TopK int

	// MinScore is the confidence gate: when the best cosine score falls
	// below it, retrieval reports no answer instead of a weak one.
	// Zero disables the gate (every match is accepted); a negative
	// value selects the default.
	MinScore float64
}

// RetrievalService runs brute-force top-K cosine search over the loaded
// vector index. The index is small enough (hundreds of chunks) that a
// linear scan beats the operational cost of an ANN index.
type RetrievalService struct {
	resolver driven.EmbeddingResolver
	snapshot driven.VectorSnapshot
	topK     int
	minScore float64
	log      *zap.Logger
}

// NewRetrievalService creates the retrieval service.
func NewRetrievalService(resolver driven.EmbeddingResolver, snapshot driven.VectorSnapshot, cfg RetrievalConfig, log *zap.Logger) *RetrievalService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinScore < 0 {
		cfg.MinScore = DefaultMinScore
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RetrievalService{
		resolver: resolver,
		snapshot: snapshot,
		topK:     cfg.TopK,
		minScore: cfg.MinScore,
		log:      log,
	}
}

// RetrieveTopK embeds the question, scores it against every stored chunk
// and assembles the best matches into a citation context. It refuses
// (OK=false) when the best score is below the confidence gate.
func (s *RetrievalService) RetrieveTopK(ctx context.Context, question string, mode domain.EmbedMode) (domain.RetrievalResult, error) {
	store := s.snapshot.Get()
	if store == nil || len(store.Items) == 0 {
		return domain.Refusal(), domain.ErrStoreNotLoaded
	}

	embedder, err := s.resolver.Resolve(mode)
	if err != nil {
		return domain.Refusal(), err
	}

	qvec, err := embedder.Embed(ctx, question, domain.TaskQuery)
	if err != nil {
		return domain.Refusal(), fmt.Errorf("embed question: %w", err)
	}
	if len(qvec) != store.Dimensions() {
		return domain.Refusal(), &domain.DimensionMismatchError{
			QueryDim: len(qvec),
			StoreDim: store.Dimensions(),
		}
	}

	type scored struct {
		item  *domain.VectorItem
		score float64
	}
	ranked := make([]scored, len(store.Items))
	for i := range store.Items {
		item := &store.Items[i]
		ranked[i] = scored{item: item, score: domain.CosineSimilarity(qvec, item.Embedding)}
	}
	// Stable so that equal scores keep ingestion order, which keeps the
	// assembled context deterministic across runs.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	top := ranked
	if len(top) > s.topK {
		top = top[:s.topK]
	}

	best := top[0].score
	if best < s.minScore {
		s.log.Debug("retrieval below confidence gate",
			zap.Float64("top_score", best),
			zap.Float64("min_score", s.minScore))
		res := domain.Refusal()
		res.TopScore = best
		return res, nil
	}

	blocks := make([]string, 0, len(top))
	sources := make([]domain.Source, 0, len(top))
	seen := make(map[string]bool, len(top))
	for i, sc := range top {
		blocks = append(blocks, fmt.Sprintf("[#%d] %s\nURL: %s\nEXCERPT:\n%s\n", i+1, sc.item.Title, sc.item.URL, sc.item.Chunk))
		if !seen[sc.item.URL] {
			seen[sc.item.URL] = true
			sources = append(sources, domain.Source{Title: sc.item.Title, URL: sc.item.URL})
		}
	}

	return domain.RetrievalResult{
		OK:       true,
		TopScore: best,
		Context:  strings.Join(blocks, "\n---\n"),
		Sources:  sources,
	}, nil
}
