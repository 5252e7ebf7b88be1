package retrieval

import (
	"fmt"
	"math"
	"sort"

	"yojana-orchestrator/internal/domain"
)

// ThresholdConfig bounds the adaptive score cutoff.
type ThresholdConfig struct {
	// MinAbsolute is the hard floor for the computed threshold. Set to 0
	// when candidate scores are not on the [0, 1] similarity scale.
	MinAbsolute float64
	// StdDevMultiplier scales how far below the mean the statistical
	// threshold sits.
	StdDevMultiplier float64
	// TopScoreRatio caps the threshold at this fraction of the top score,
	// so tight top-heavy distributions never filter everything out.
	TopScoreRatio float64
	// MinDocsRequired is the guaranteed yield when any candidate exists.
	MinDocsRequired int
	// IntentAdjustments shifts the statistical threshold per intent before
	// re-flooring. Positive values make an intent stricter.
	IntentAdjustments map[domain.Intent]float64
}

// DefaultThresholdConfig returns the production threshold parameters.
// Eligibility and benefits questions need precise passages, so they tighten
// the cutoff; discovery casts the widest net.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		MinAbsolute:      0.3,
		StdDevMultiplier: 0.5,
		TopScoreRatio:    0.7,
		MinDocsRequired:  1,
		IntentAdjustments: map[domain.Intent]float64{
			domain.IntentEligibility: 0.05,
			domain.IntentBenefits:    0.05,
			domain.IntentProcedure:   0.0,
			domain.IntentComparison:  0.0,
			domain.IntentDiscovery:   -0.05,
			domain.IntentGeneral:     0.0,
		},
	}
}

// Validate checks parameter sanity.
func (c ThresholdConfig) Validate() error {
	if c.MinAbsolute < 0 {
		return fmt.Errorf("threshold min absolute must be non-negative, got %f", c.MinAbsolute)
	}
	if c.StdDevMultiplier < 0 {
		return fmt.Errorf("threshold std dev multiplier must be non-negative, got %f", c.StdDevMultiplier)
	}
	if c.TopScoreRatio <= 0 || c.TopScoreRatio > 1 {
		return fmt.Errorf("threshold top score ratio must be in (0, 1], got %f", c.TopScoreRatio)
	}
	if c.MinDocsRequired < 1 {
		return fmt.Errorf("threshold min docs required must be at least 1, got %d", c.MinDocsRequired)
	}
	return nil
}

// WithMinAbsolute returns a copy with a different floor. Used for pure
// lexical candidate sets, whose raw BM25 scores are not comparable to the
// [0, 1] similarity scale the default floor assumes.
func (c ThresholdConfig) WithMinAbsolute(floor float64) ThresholdConfig {
	c.MinAbsolute = floor
	return c
}

// SelectByThreshold computes an adaptive cutoff for the candidates and
// returns those at or above it, sorted best first, together with the
// decision that produced them.
//
// The cutoff starts from mean - multiplier*stddev, shifts by the intent
// adjustment, is capped at top*ratio, and never drops below the floor. When
// the cutoff would keep fewer than MinDocsRequired documents, the top
// MinDocsRequired by score are kept instead and the reported threshold
// relaxes to just below the last kept score.
func SelectByThreshold(candidates []domain.ScoredDocument, intent domain.Intent, cfg ThresholdConfig) ([]domain.ScoredDocument, domain.ThresholdDecision) {
	total := len(candidates)
	if total == 0 {
		return nil, domain.ThresholdDecision{
			Threshold: cfg.MinAbsolute,
			Method:    domain.ThresholdMethodDefaultEmpty,
		}
	}

	var sum float64
	top := math.Inf(-1)
	for _, c := range candidates {
		sum += c.Score
		if c.Score > top {
			top = c.Score
		}
	}
	mean := sum / float64(total)

	var variance float64
	for _, c := range candidates {
		d := c.Score - mean
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(total))

	statistical := mean - cfg.StdDevMultiplier*stdDev
	if statistical < cfg.MinAbsolute {
		statistical = cfg.MinAbsolute
	}

	adjusted := statistical + cfg.IntentAdjustments[intent]
	threshold := math.Min(adjusted, top*cfg.TopScoreRatio)
	if threshold < cfg.MinAbsolute {
		threshold = cfg.MinAbsolute
	}

	sorted := make([]domain.ScoredDocument, total)
	copy(sorted, candidates)
	sortScored(sorted)

	var kept []domain.ScoredDocument
	for _, c := range sorted {
		if c.Score >= threshold {
			kept = append(kept, c)
		}
	}

	method := domain.ThresholdMethodAdaptive
	if len(kept) < cfg.MinDocsRequired {
		n := cfg.MinDocsRequired
		if n > total {
			n = total
		}
		kept = sorted[:n]
		threshold = sorted[n-1].Score * 0.99
		method = domain.ThresholdMethodMinDocsOverride
	}

	return kept, domain.ThresholdDecision{
		Threshold:     threshold,
		Mean:          mean,
		StdDev:        stdDev,
		TopScore:      top,
		Method:        method,
		AcceptedCount: len(kept),
		TotalCount:    total,
	}
}

// sortScored orders best first, breaking score ties by document ID so equal
// inputs always produce equal output order.
func sortScored(docs []domain.ScoredDocument) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].Document.ID < docs[j].Document.ID
	})
}
