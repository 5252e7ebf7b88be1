package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"yojana-orchestrator/internal/domain"
)

const (
	// blendFetchMultiplier scales topK into the open-hybrid fetch for the
	// boosted blend stage.
	blendFetchMultiplier = 2

	// boostedScoreCap is the ceiling applied after the filtered-priority
	// boost.
	boostedScoreCap = 1.0
)

// FilteredConfig holds scheme-filtered retrieval parameters.
type FilteredConfig struct {
	// MinResults is the combined Stage 1+2 yield below which the boosted
	// blend stage runs.
	MinResults int
	// BoostBonus is added to every already-filtered document's score
	// before blending, so filter matches keep priority over open results.
	BoostBonus float64
	// MinDocsPerScheme floors the per-scheme slice size in comparison
	// mode, so narrow topK values cannot starve a compared scheme.
	MinDocsPerScheme int
}

// DefaultFilteredConfig returns the production filtered-mode parameters.
func DefaultFilteredConfig() FilteredConfig {
	return FilteredConfig{
		MinResults:       3,
		BoostBonus:       0.2,
		MinDocsPerScheme: 2,
	}
}

// Validate checks parameter sanity.
func (c FilteredConfig) Validate() error {
	if c.MinResults < 1 {
		return fmt.Errorf("filtered min results must be at least 1, got %d", c.MinResults)
	}
	if c.BoostBonus < 0 || c.BoostBonus > boostedScoreCap {
		return fmt.Errorf("filtered boost bonus must be in [0, %g], got %f", boostedScoreCap, c.BoostBonus)
	}
	if c.MinDocsPerScheme < 1 {
		return fmt.Errorf("filtered min docs per scheme must be at least 1, got %d", c.MinDocsPerScheme)
	}
	return nil
}

// RetrieveFiltered runs the scheme-filtered path as a three-stage fallback
// chain: filtered vector search, then a lexical re-rank of the scrolled
// filter set when the vector stage found nothing, then a boosted blend with
// open hybrid results when the combined yield is still thin.
//
// A stage whose external call fails contributes zero results and the chain
// moves on; only when every stage failed does the retriever report
// ErrRetrievalUnavailable. Unknown scheme or theme values are not validated
// up front: a filter that matches nothing yields an empty stage, the same
// as a sparse corpus.
//
// Multi-scheme comparison queries take a separate path that retrieves per
// scheme, so one scheme cannot crowd the others out of the result set.
func RetrieveFiltered(
	ctx context.Context,
	sc *StageContext,
	index domain.VectorIndex,
	lexical *LexicalIndex,
	cfg FilteredConfig,
	hybridCfg HybridConfig,
	thresholdCfg ThresholdConfig,
	logger *slog.Logger,
) error {
	schemes := sc.Decomposition.DetectedSchemes
	if sc.Intent == domain.IntentComparison && len(schemes) > 1 {
		return retrieveComparison(ctx, sc, index, cfg, thresholdCfg, logger)
	}

	filter := domain.SearchFilter{SchemeNames: schemes, Theme: sc.Theme}
	var lastFailure error
	anySucceeded := false

	// Stage 1: filtered vector search.
	sc.Stage = StageFilteredVector
	if len(sc.QueryEmbedding) == 0 {
		err := domain.NewUpstreamError("filtered_vector_search", errors.New("query embedding unavailable"))
		sc.RecordFailure(err)
		lastFailure = err
	} else if hits, err := index.Search(ctx, sc.QueryEmbedding, filter, sc.TopK); err != nil {
		uerr := domain.NewUpstreamError("filtered_vector_search", err)
		sc.RecordFailure(uerr)
		lastFailure = uerr
		logger.Warn("filtered_vector_search_failed",
			slog.String("retrieval_id", sc.RetrievalID),
			slog.String("error", err.Error()))
	} else {
		anySucceeded = true
		candidates := make([]domain.ScoredDocument, 0, len(hits))
		for _, h := range hits {
			candidates = append(candidates, domain.ScoredDocument{Document: h.Document, Score: h.Score, Semantic: true})
		}
		sc.Candidates = candidates
		logger.Info("filtered_vector_search_completed",
			slog.String("retrieval_id", sc.RetrievalID),
			slog.Any("schemes", schemes),
			slog.String("theme", sc.Theme),
			slog.Int("result_count", len(candidates)))
	}

	// Stage 2: lexical re-rank of the whole filtered set, only when the
	// vector stage yielded nothing. A query can be lexically answerable
	// within a scheme even when its embedding lands far from the scheme's
	// chunks.
	if len(sc.Candidates) == 0 {
		reranked, err := lexicalRerankFiltered(ctx, sc.Query, filter, sc.TopK, index, lexical)
		if err != nil {
			sc.RecordFailure(err)
			lastFailure = err
			logger.Warn("lexical_rerank_failed",
				slog.String("retrieval_id", sc.RetrievalID),
				slog.String("error", err.Error()))
		} else {
			anySucceeded = true
			if len(reranked) > 0 {
				sc.Stage = StageBM25Reranked
				sc.Candidates = reranked
				logger.Info("lexical_rerank_completed",
					slog.String("retrieval_id", sc.RetrievalID),
					slog.Int("result_count", len(reranked)))
			}
		}
	}

	// Stage 3: boosted blend with open hybrid results when the yield is
	// below the configured minimum.
	if len(sc.Candidates) < cfg.MinResults {
		fused, failures, err := openHybrid(ctx, sc.Query, sc.QueryEmbedding, sc.TopK*blendFetchMultiplier,
			domain.IntentGeneral, index, lexical, hybridCfg, sc.RetrievalID, logger)
		for _, f := range failures {
			sc.RecordFailure(f)
		}
		if err != nil {
			if len(failures) > 0 {
				lastFailure = failures[len(failures)-1]
			}
			logger.Warn("boosted_blend_failed",
				slog.String("retrieval_id", sc.RetrievalID),
				slog.String("error", err.Error()))
		} else {
			anySucceeded = true
			filteredCount := len(sc.Candidates)
			sc.Stage = StageFilteredVectorBoosted
			sc.Candidates = blendBoosted(sc.Candidates, fused, sc.TopK, cfg)
			logger.Info("boosted_blend_completed",
				slog.String("retrieval_id", sc.RetrievalID),
				slog.Int("filtered_count", filteredCount),
				slog.Int("blended_count", len(sc.Candidates)))
		}
	}

	if !anySucceeded {
		return fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, lastFailure)
	}
	return nil
}

// lexicalRerankFiltered scrolls every document matching the filter and
// ranks them against the query with corpus-level BM25 statistics.
func lexicalRerankFiltered(
	ctx context.Context,
	query string,
	filter domain.SearchFilter,
	topK int,
	index domain.VectorIndex,
	lexical *LexicalIndex,
) ([]domain.ScoredDocument, error) {
	if err := lexical.Ensure(ctx, index); err != nil {
		return nil, err
	}
	docs, err := index.Scroll(ctx, filter)
	if err != nil {
		return nil, domain.NewUpstreamError("filtered_scroll", err)
	}
	hits := lexical.ScoreSubset(query, docs)
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]domain.ScoredDocument, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.ScoredDocument{Document: h.Document, Score: h.Score, Lexical: true})
	}
	return out, nil
}

// blendBoosted lifts every filtered document by the boost bonus, appends up
// to topK open results not already present, and returns the top topK of the
// union.
func blendBoosted(filtered, open []domain.ScoredDocument, topK int, cfg FilteredConfig) []domain.ScoredDocument {
	seen := make(map[string]bool, len(filtered))
	combined := make([]domain.ScoredDocument, 0, len(filtered)+topK)
	for _, c := range filtered {
		c.Score = math.Min(c.Score+cfg.BoostBonus, boostedScoreCap)
		combined = append(combined, c)
		seen[c.Document.ID] = true
	}
	added := 0
	for _, c := range open {
		if added >= topK {
			break
		}
		if seen[c.Document.ID] {
			continue
		}
		combined = append(combined, c)
		added++
	}
	sortScored(combined)
	if topK > 0 && len(combined) > topK {
		combined = combined[:topK]
	}
	return combined
}

// retrieveComparison retrieves a top slice per scheme and thresholds each
// slice on its own, so every compared scheme stays represented in the
// merged result. The facade's global threshold pass is skipped via the
// Thresholded flag.
func retrieveComparison(
	ctx context.Context,
	sc *StageContext,
	index domain.VectorIndex,
	cfg FilteredConfig,
	thresholdCfg ThresholdConfig,
	logger *slog.Logger,
) error {
	schemes := sc.Decomposition.DetectedSchemes
	perScheme := sc.TopK / len(schemes)
	if perScheme < cfg.MinDocsPerScheme {
		perScheme = cfg.MinDocsPerScheme
	}

	if len(sc.QueryEmbedding) == 0 {
		err := domain.NewUpstreamError("comparison_search", errors.New("query embedding unavailable"))
		sc.RecordFailure(err)
		return fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, err)
	}

	sc.Stage = StageFilteredVector
	slices := make([][]domain.ScoredDocument, 0, len(schemes))
	var lastFailure error
	anySucceeded := false
	for _, scheme := range schemes {
		hits, err := index.Search(ctx, sc.QueryEmbedding, domain.SearchFilter{SchemeNames: []string{scheme}}, perScheme)
		if err != nil {
			uerr := domain.NewUpstreamError("comparison_search", err)
			sc.RecordFailure(uerr)
			lastFailure = uerr
			logger.Warn("comparison_scheme_search_failed",
				slog.String("retrieval_id", sc.RetrievalID),
				slog.String("scheme", scheme),
				slog.String("error", err.Error()))
			continue
		}
		anySucceeded = true
		docs := make([]domain.ScoredDocument, 0, len(hits))
		for _, h := range hits {
			docs = append(docs, domain.ScoredDocument{Document: h.Document, Score: h.Score, Semantic: true})
		}
		slices = append(slices, docs)
	}
	if !anySucceeded {
		return fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, lastFailure)
	}

	candidates, decision := AllocateComparison(slices, sc.Intent, thresholdCfg)
	sc.Candidates = candidates
	sc.Thresholded = true
	sc.Threshold = decision
	logger.Info("comparison_retrieval_completed",
		slog.String("retrieval_id", sc.RetrievalID),
		slog.Any("schemes", schemes),
		slog.Int("docs_per_scheme", perScheme),
		slog.Int("result_count", len(candidates)))
	return nil
}
