package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"yojana-orchestrator/internal/domain"
)

// OutputValidator ensures the LLM output follows the expected structure and
// only cites schemes that were actually retrieved.
type OutputValidator struct{}

// NewOutputValidator creates a validator instance (currently stateless).
func NewOutputValidator() OutputValidator {
	return OutputValidator{}
}

// Validate parses and checks the JSON output emitted by the LLM.
func (v OutputValidator) Validate(raw string, docs []domain.ScoredDocument) (*LLMAnswer, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("llm response is empty")
	}

	var answer LLMAnswer
	if err := json.Unmarshal([]byte(trimmed), &answer); err != nil {
		return nil, fmt.Errorf("failed to parse llm response: %w", err)
	}

	if answer.Fallback {
		return &answer, nil
	}

	if strings.TrimSpace(answer.Answer) == "" {
		return nil, errors.New("missing answer in response")
	}
	if len(answer.Schemes) == 0 {
		return nil, errors.New("missing scheme citations in response")
	}

	if len(docs) > 0 {
		allowed := make(map[string]struct{}, len(docs))
		for _, d := range docs {
			allowed[strings.ToLower(d.Document.SchemeName)] = struct{}{}
		}
		for _, name := range answer.Schemes {
			trimmedName := strings.TrimSpace(name)
			if trimmedName == "" {
				return nil, errors.New("citation with empty scheme name")
			}
			if _, ok := allowed[strings.ToLower(trimmedName)]; !ok {
				return nil, fmt.Errorf("citation references unknown scheme %q", trimmedName)
			}
		}
	}

	return &answer, nil
}

// LLMAnswer models the JSON output the prompt format section enforces.
type LLMAnswer struct {
	Answer   string   `json:"answer"`
	Schemes  []string `json:"schemes"`
	Fallback bool     `json:"fallback"`
	Reason   string   `json:"reason"`
}
