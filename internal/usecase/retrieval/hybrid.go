package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"yojana-orchestrator/internal/domain"

	"golang.org/x/sync/errgroup"
)

// FusionWeights are the per-leg RRF weights for one intent.
type FusionWeights struct {
	Lexical  float64
	Semantic float64
}

// HybridConfig holds open-mode fusion parameters.
type HybridConfig struct {
	// RRFK is the reciprocal-rank-fusion constant.
	RRFK float64
	// FetchMultiplier scales topK into the per-leg fetch limit, so fusion
	// sees more than it keeps.
	FetchMultiplier int
	// FusedWeight and SemanticWeight blend the normalized RRF score with
	// the raw cosine similarity into the final score.
	FusedWeight    float64
	SemanticWeight float64
	// IntentWeights selects leg weights per intent. Precision intents lean
	// on exact term overlap; discovery leans semantic.
	IntentWeights map[domain.Intent]FusionWeights
}

// DefaultHybridConfig returns the production fusion parameters.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		RRFK:            60,
		FetchMultiplier: 2,
		FusedWeight:     0.7,
		SemanticWeight:  0.3,
		IntentWeights: map[domain.Intent]FusionWeights{
			domain.IntentEligibility: {Lexical: 0.5, Semantic: 0.5},
			domain.IntentDiscovery:   {Lexical: 0.3, Semantic: 0.7},
			domain.IntentBenefits:    {Lexical: 0.5, Semantic: 0.5},
			domain.IntentComparison:  {Lexical: 0.4, Semantic: 0.6},
			domain.IntentProcedure:   {Lexical: 0.45, Semantic: 0.55},
			domain.IntentGeneral:     {Lexical: 0.4, Semantic: 0.6},
		},
	}
}

// Validate checks parameter sanity.
func (c HybridConfig) Validate() error {
	if c.RRFK <= 0 {
		return fmt.Errorf("hybrid rrf k must be positive, got %f", c.RRFK)
	}
	if c.FetchMultiplier < 1 {
		return fmt.Errorf("hybrid fetch multiplier must be at least 1, got %d", c.FetchMultiplier)
	}
	if c.FusedWeight < 0 || c.SemanticWeight < 0 || c.FusedWeight+c.SemanticWeight == 0 {
		return fmt.Errorf("hybrid blend weights must be non-negative and not both zero, got %f and %f", c.FusedWeight, c.SemanticWeight)
	}
	for intent, w := range c.IntentWeights {
		if w.Lexical < 0 || w.Semantic < 0 || w.Lexical+w.Semantic == 0 {
			return fmt.Errorf("hybrid intent weights for %s must be non-negative and not both zero", intent)
		}
	}
	return nil
}

// weightsFor resolves the leg weights for an intent, falling back to the
// general entry.
func (c HybridConfig) weightsFor(intent domain.Intent) FusionWeights {
	if w, ok := c.IntentWeights[intent]; ok {
		return w
	}
	if w, ok := c.IntentWeights[domain.IntentGeneral]; ok {
		return w
	}
	return FusionWeights{Lexical: 0.4, Semantic: 0.6}
}

// RetrieveHybrid runs the open-mode path: lexical and semantic rankings over
// the whole corpus in parallel, fused with weighted reciprocal rank fusion.
//
// One failed leg degrades to the surviving leg; both legs failing is the
// only error this stage returns. Results land in sc.Candidates with the
// union of contributing sources per document.
func RetrieveHybrid(
	ctx context.Context,
	sc *StageContext,
	index domain.VectorIndex,
	lexical *LexicalIndex,
	cfg HybridConfig,
	logger *slog.Logger,
) error {
	fused, failures, err := openHybrid(ctx, sc.Query, sc.QueryEmbedding, sc.TopK, sc.Intent, index, lexical, cfg, sc.RetrievalID, logger)
	for _, f := range failures {
		sc.RecordFailure(f)
	}
	if err != nil {
		return err
	}
	sc.Stage = StageHybrid
	sc.Candidates = fused
	return nil
}

// openHybrid runs both legs and fuses them. It returns the recovered leg
// failures alongside the fused candidates; the error is non-nil only when
// both legs failed.
func openHybrid(
	ctx context.Context,
	query string,
	embedding []float32,
	topK int,
	intent domain.Intent,
	index domain.VectorIndex,
	lexical *LexicalIndex,
	cfg HybridConfig,
	retrievalID string,
	logger *slog.Logger,
) ([]domain.ScoredDocument, []error, error) {
	fetchLimit := topK * cfg.FetchMultiplier
	searchStart := time.Now()

	var (
		lexicalHits []LexicalHit
		lexicalErr  error
		vectorHits  []domain.VectorHit
		vectorErr   error
	)

	// Leg failures are collected, not returned: errgroup cancellation must
	// not kill the surviving leg.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := lexical.Ensure(gctx, index); err != nil {
			lexicalErr = err
			return nil
		}
		lexicalHits = lexical.ScoreAll(query, fetchLimit)
		return nil
	})
	g.Go(func() error {
		if len(embedding) == 0 {
			vectorErr = domain.NewUpstreamError("vector_search", errors.New("query embedding unavailable"))
			return nil
		}
		hits, err := index.Search(gctx, embedding, domain.SearchFilter{}, fetchLimit)
		if err != nil {
			vectorErr = domain.NewUpstreamError("vector_search", err)
			return nil
		}
		vectorHits = hits
		return nil
	})
	_ = g.Wait()

	var failures []error
	if lexicalErr != nil {
		failures = append(failures, lexicalErr)
		logger.Warn("hybrid_lexical_leg_failed",
			slog.String("retrieval_id", retrievalID),
			slog.String("error", lexicalErr.Error()))
	}
	if vectorErr != nil {
		failures = append(failures, vectorErr)
		logger.Warn("hybrid_semantic_leg_failed",
			slog.String("retrieval_id", retrievalID),
			slog.String("error", vectorErr.Error()))
	}
	if lexicalErr != nil && vectorErr != nil {
		return nil, failures, fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, vectorErr)
	}

	logger.Info("parallel_hybrid_search_completed",
		slog.String("retrieval_id", retrievalID),
		slog.Int("lexical_count", len(lexicalHits)),
		slog.Int("semantic_count", len(vectorHits)),
		slog.Int64("duration_ms", time.Since(searchStart).Milliseconds()))

	fused := fuseHybrid(lexicalHits, vectorHits, topK, cfg.weightsFor(intent), cfg, retrievalID, logger)
	return fused, failures, nil
}

// fuseHybrid merges the two rankings with weighted RRF, normalizes the RRF
// score against its per-request maximum, and blends in the raw semantic
// similarity so the result stays on the scale the threshold engine expects.
func fuseHybrid(
	lexicalHits []LexicalHit,
	vectorHits []domain.VectorHit,
	topK int,
	weights FusionWeights,
	cfg HybridConfig,
	retrievalID string,
	logger *slog.Logger,
) []domain.ScoredDocument {
	type fusedDoc struct {
		doc           domain.SchemeDocument
		rrf           float64
		semanticScore float64
		lexical       bool
		semantic      bool
	}
	fusedMap := make(map[string]*fusedDoc, len(lexicalHits)+len(vectorHits))

	for _, h := range lexicalHits {
		fd, ok := fusedMap[h.Document.ID]
		if !ok {
			fd = &fusedDoc{doc: h.Document}
			fusedMap[h.Document.ID] = fd
		}
		fd.rrf += weights.Lexical / (cfg.RRFK + float64(h.Rank))
		fd.lexical = true
	}
	for i, h := range vectorHits {
		fd, ok := fusedMap[h.Document.ID]
		if !ok {
			fd = &fusedDoc{doc: h.Document}
			fusedMap[h.Document.ID] = fd
		}
		fd.rrf += weights.Semantic / (cfg.RRFK + float64(i+1))
		fd.semantic = true
		fd.semanticScore = h.Score
	}

	// A rank-1 hit on both legs scores exactly maxRRF, so normalization
	// maps the RRF component into [0, 1].
	maxRRF := (weights.Lexical + weights.Semantic) / (cfg.RRFK + 1)

	fused := make([]domain.ScoredDocument, 0, len(fusedMap))
	for _, fd := range fusedMap {
		fused = append(fused, domain.ScoredDocument{
			Document: fd.doc,
			Score:    cfg.FusedWeight*(fd.rrf/maxRRF) + cfg.SemanticWeight*fd.semanticScore,
			Lexical:  fd.lexical,
			Semantic: fd.semantic,
		})
	}
	sortScored(fused)
	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}

	logger.Info("hybrid_rrf_fusion_completed",
		slog.String("retrieval_id", retrievalID),
		slog.Int("lexical_count", len(lexicalHits)),
		slog.Int("semantic_count", len(vectorHits)),
		slog.Int("fused_count", len(fused)))
	return fused
}
