package retrieval

import (
	"yojana-orchestrator/internal/domain"
)

// Stage labels reported in retrieval metadata. They name the stage that
// produced the final candidate set.
const (
	StageFilteredVector        = "filtered_vector"
	StageBM25Reranked          = "bm25_reranked"
	StageFilteredVectorBoosted = "filtered_vector_boosted"
	StageHybrid                = "hybrid"
)

// StageContext carries data between retrieval stages for one request.
type StageContext struct {
	// Input
	RetrievalID string
	Query       string
	Intent      domain.Intent
	TopK        int
	Theme       string

	// Decomposition output
	Decomposition domain.Decomposition

	// Query embedding, nil when the encoder call failed. Stages that need it
	// treat nil as an upstream failure and fall through.
	QueryEmbedding []float32

	// Stage outputs
	Stage      string
	Candidates []domain.ScoredDocument

	// Set when a retriever already applied thresholding internally
	// (comparison mode thresholds per entity to keep representation
	// balanced). The facade then skips its own threshold pass.
	Thresholded bool
	Threshold   domain.ThresholdDecision

	// Upstream failures recovered along the way, for logging and for the
	// all-stages-failed check.
	StageFailures []error
}

// RecordFailure registers a recovered upstream failure.
func (sc *StageContext) RecordFailure(err error) {
	if err != nil {
		sc.StageFailures = append(sc.StageFailures, err)
	}
}
