package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"yojana-orchestrator/internal/domain"
	"yojana-orchestrator/internal/usecase/retrieval"

	"github.com/google/uuid"
)

// RetrieveContextInput defines the input parameters for RetrieveContext.
// Intent defaults to General and TopK to the intent budget when unset.
type RetrieveContextInput struct {
	Query  string
	Intent domain.Intent
	TopK   int
	Theme  string
}

// RetrieveMetadata describes how a result set was produced. Callers use it
// for debugging and for deciding whether an empty result means "nothing
// relevant" or "retrieval degraded".
type RetrieveMetadata struct {
	RetrievalID    string
	Stage          string
	Decomposition  domain.Decomposition
	Threshold      domain.ThresholdDecision
	CandidateCount int
}

// RetrieveContextOutput carries the selected documents plus retrieval
// metadata. An empty Documents slice with a populated Metadata is a valid
// answer, distinct from ErrRetrievalUnavailable.
type RetrieveContextOutput struct {
	Documents []domain.ScoredDocument
	Metadata  RetrieveMetadata
}

// RetrieveContextUsecase defines the interface for retrieving context.
type RetrieveContextUsecase interface {
	Execute(ctx context.Context, input RetrieveContextInput) (*RetrieveContextOutput, error)
}

type retrieveContextUsecase struct {
	index      domain.VectorIndex
	encoder    domain.VectorEncoder
	decomposer *retrieval.Decomposer
	lexical    *retrieval.LexicalIndex
	cfg        RetrievalConfig
	logger     *slog.Logger
}

// NewRetrieveContextUsecase creates a new RetrieveContextUsecase.
func NewRetrieveContextUsecase(
	index domain.VectorIndex,
	encoder domain.VectorEncoder,
	decomposer *retrieval.Decomposer,
	lexical *retrieval.LexicalIndex,
	cfg RetrievalConfig,
	logger *slog.Logger,
) RetrieveContextUsecase {
	return &retrieveContextUsecase{
		index:      index,
		encoder:    encoder,
		decomposer: decomposer,
		lexical:    lexical,
		cfg:        cfg,
		logger:     logger,
	}
}

// Execute runs decomposition, the staged retrievers and adaptive
// thresholding. Identical queries against an unchanged corpus return
// identical documents in identical order.
func (u *retrieveContextUsecase) Execute(ctx context.Context, input RetrieveContextInput) (*RetrieveContextOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	intent := input.Intent
	if intent == "" {
		intent = domain.IntentGeneral
	}
	topK := input.TopK
	if topK <= 0 {
		topK = u.cfg.TopKFor(intent)
	}

	sc := &retrieval.StageContext{
		RetrievalID: uuid.NewString(),
		Query:       query,
		Intent:      intent,
		TopK:        topK,
		Theme:       strings.TrimSpace(input.Theme),
	}

	// Embed once; every stage that needs the vector shares it. A failed
	// encoder is an upstream failure, not a fatal one: the lexical paths
	// can still serve.
	if vecs, err := u.encoder.Encode(ctx, []string{query}); err != nil {
		sc.RecordFailure(domain.NewUpstreamError("encode_query", err))
		u.logger.Warn("query_embedding_failed",
			slog.String("retrieval_id", sc.RetrievalID),
			slog.String("error", err.Error()))
	} else if len(vecs) == 1 {
		sc.QueryEmbedding = vecs[0]
	} else {
		sc.RecordFailure(domain.NewUpstreamError("encode_query",
			fmt.Errorf("expected 1 embedding, got %d", len(vecs))))
	}

	sc.Decomposition = u.decomposer.Decompose(ctx, query)

	var err error
	if sc.Decomposition.Mode == domain.ModeFiltered {
		err = retrieval.RetrieveFiltered(ctx, sc, u.index, u.lexical,
			u.cfg.Filtered, u.cfg.Hybrid, u.cfg.Threshold, u.logger)
	} else {
		err = retrieval.RetrieveHybrid(ctx, sc, u.index, u.lexical, u.cfg.Hybrid, u.logger)
	}
	if err != nil {
		return nil, fmt.Errorf("staged retrieval failed: %w", err)
	}

	if !sc.Thresholded {
		thresholdCfg := u.cfg.Threshold
		if sc.Stage == retrieval.StageBM25Reranked {
			// Raw BM25 scores are unbounded and not comparable to the
			// cosine scale the absolute floor assumes.
			thresholdCfg = thresholdCfg.WithMinAbsolute(0)
		}
		sc.Candidates, sc.Threshold = retrieval.SelectByThreshold(sc.Candidates, intent, thresholdCfg)
		sc.Thresholded = true
	}

	u.logger.Info("retrieval_completed",
		slog.String("retrieval_id", sc.RetrievalID),
		slog.String("stage", sc.Stage),
		slog.String("intent", intent.String()),
		slog.String("mode", string(sc.Decomposition.Mode)),
		slog.Int("candidates", sc.Threshold.TotalCount),
		slog.Int("accepted", len(sc.Candidates)),
		slog.Float64("threshold", sc.Threshold.Threshold),
		slog.String("threshold_method", sc.Threshold.Method),
		slog.Int("recovered_failures", len(sc.StageFailures)))

	documents := sc.Candidates
	if documents == nil {
		documents = []domain.ScoredDocument{}
	}

	return &RetrieveContextOutput{
		Documents: documents,
		Metadata: RetrieveMetadata{
			RetrievalID:    sc.RetrievalID,
			Stage:          sc.Stage,
			Decomposition:  sc.Decomposition,
			Threshold:      sc.Threshold,
			CandidateCount: sc.Threshold.TotalCount,
		},
	}, nil
}
