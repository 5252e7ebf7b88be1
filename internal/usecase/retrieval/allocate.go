package retrieval

import (
	"yojana-orchestrator/internal/domain"
)

// AllocateComparison merges per-scheme candidate slices into one result set
// for comparison queries. Each slice is thresholded on its own with the
// active intent, then the kept slices are concatenated in scheme order, so
// a strong scheme cannot evict a weaker one the way a single global cutoff
// would.
//
// The returned decision aggregates the per-slice decisions: counts are
// summed over all slices, the threshold is the loosest slice cutoff (every
// kept document scores at or above it within its own slice), and the top
// score is the maximum seen anywhere.
func AllocateComparison(
	slices [][]domain.ScoredDocument,
	intent domain.Intent,
	cfg ThresholdConfig,
) ([]domain.ScoredDocument, domain.ThresholdDecision) {
	merged := domain.ThresholdDecision{
		Threshold: cfg.MinAbsolute,
		Method:    domain.ThresholdMethodDefaultEmpty,
	}

	seen := make(map[string]bool)
	var out []domain.ScoredDocument
	overrideOnly := true
	first := true

	for _, slice := range slices {
		if len(slice) == 0 {
			continue
		}
		kept, decision := SelectByThreshold(slice, intent, cfg)

		merged.TotalCount += decision.TotalCount
		if decision.TopScore > merged.TopScore {
			merged.TopScore = decision.TopScore
		}
		if first || decision.Threshold < merged.Threshold {
			merged.Threshold = decision.Threshold
		}
		first = false
		if decision.Method != domain.ThresholdMethodMinDocsOverride {
			overrideOnly = false
		}

		for _, c := range kept {
			if seen[c.Document.ID] {
				continue
			}
			seen[c.Document.ID] = true
			out = append(out, c)
		}
	}

	merged.AcceptedCount = len(out)
	if merged.TotalCount > 0 {
		merged.Method = domain.ThresholdMethodAdaptive
		if overrideOnly {
			merged.Method = domain.ThresholdMethodMinDocsOverride
		}
	}
	return out, merged
}
