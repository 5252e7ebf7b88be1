package domain

// Threshold selection methods reported in ThresholdDecision.Method.
const (
	// ThresholdMethodAdaptive means the statistical cutoff was applied as-is.
	ThresholdMethodAdaptive = "adaptive"
	// ThresholdMethodMinDocsOverride means the cutoff was relaxed to keep the
	// required minimum number of documents.
	ThresholdMethodMinDocsOverride = "min_docs_override"
	// ThresholdMethodDefaultEmpty means there were no candidates to score.
	ThresholdMethodDefaultEmpty = "default_empty"
)

// ThresholdDecision records how a score cutoff was chosen for one retrieval,
// for response diagnostics and logs.
type ThresholdDecision struct {
	Threshold     float64
	Mean          float64
	StdDev        float64
	TopScore      float64
	Method        string
	AcceptedCount int
	TotalCount    int
}
