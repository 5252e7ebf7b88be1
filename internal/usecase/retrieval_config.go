package usecase

import (
	"fmt"

	"yojana-orchestrator/internal/domain"
	"yojana-orchestrator/internal/usecase/retrieval"
)

// RetrievalConfig bundles the tuning knobs of the staged retrieval pipeline.
// The zero value is not usable; start from DefaultRetrievalConfig and override
// individual sections.
type RetrievalConfig struct {
	// Lexical holds the BM25 parameters shared by the rerank stage and the
	// lexical leg of hybrid search.
	Lexical retrieval.LexicalConfig

	// Threshold drives adaptive candidate selection after retrieval.
	Threshold retrieval.ThresholdConfig

	// Filtered controls the staged fallback chain used when the query names
	// known schemes.
	Filtered retrieval.FilteredConfig

	// Hybrid controls the parallel legs and RRF fusion of open-corpus search.
	Hybrid retrieval.HybridConfig

	// IntentTopK overrides the candidate budget per intent. Discovery and
	// comparison questions span several schemes and need a wider net than a
	// pointed eligibility question about one.
	IntentTopK map[domain.Intent]int

	// DefaultTopK applies to intents without a dedicated budget.
	DefaultTopK int
}

// DefaultRetrievalConfig returns the tuned defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Lexical:   retrieval.DefaultLexicalConfig(),
		Threshold: retrieval.DefaultThresholdConfig(),
		Filtered:  retrieval.DefaultFilteredConfig(),
		Hybrid:    retrieval.DefaultHybridConfig(),
		IntentTopK: map[domain.Intent]int{
			domain.IntentDiscovery:  10,
			domain.IntentComparison: 10,
		},
		DefaultTopK: 5,
	}
}

// TopKFor resolves the candidate budget for an intent.
func (c RetrievalConfig) TopKFor(intent domain.Intent) int {
	if k, ok := c.IntentTopK[intent]; ok && k > 0 {
		return k
	}
	return c.DefaultTopK
}

// Validate checks every section and reports the first offending value.
func (c RetrievalConfig) Validate() error {
	if err := c.Lexical.Validate(); err != nil {
		return fmt.Errorf("lexical config invalid: %w", err)
	}
	if err := c.Threshold.Validate(); err != nil {
		return fmt.Errorf("threshold config invalid: %w", err)
	}
	if err := c.Filtered.Validate(); err != nil {
		return fmt.Errorf("filtered config invalid: %w", err)
	}
	if err := c.Hybrid.Validate(); err != nil {
		return fmt.Errorf("hybrid config invalid: %w", err)
	}
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("default top-k must be positive, got %d", c.DefaultTopK)
	}
	for intent, k := range c.IntentTopK {
		if k <= 0 {
			return fmt.Errorf("top-k for intent %s must be positive, got %d", intent, k)
		}
	}
	return nil
}
