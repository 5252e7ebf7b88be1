package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"yojana-orchestrator/internal/domain"
)

const intentClassificationTimeout = 5 * time.Second

// IntentClassifier labels a query with the intent that tunes retrieval depth
// and fusion weights. Classification never fails a request: every error path
// lands on IntentGeneral.
type IntentClassifier interface {
	Classify(ctx context.Context, query string) domain.Intent
}

type intentRule struct {
	pattern *regexp.Regexp
	intent  domain.Intent
}

// intentRules are checked in order; the first match wins. Comparison goes
// first because comparative phrasings routinely embed eligibility or benefit
// keywords ("compare the eligibility of X and Y").
var intentRules = []intentRule{
	{regexp.MustCompile(`(?i)\b(compare|comparison|versus|vs\.?|difference between|better than|which is better)\b`), domain.IntentComparison},
	{regexp.MustCompile(`(?i)\b(eligib\w*|who can apply|can i apply|am i eligible|qualif\w*|criteria)\b`), domain.IntentEligibility},
	{regexp.MustCompile(`(?i)\b(how to apply|application (process|procedure|form|steps)|procedure|documents? (required|needed)|steps to|where to apply)\b`), domain.IntentProcedure},
	{regexp.MustCompile(`(?i)\b(benefits?|subsidy amount|how much|loan amount|assistance amount|incentives?|what do i get)\b`), domain.IntentBenefits},
	{regexp.MustCompile(`(?i)\b(schemes? (for|available)|list (of )?schemes?|what schemes?|which schemes?|any schemes?)\b`), domain.IntentDiscovery},
}

type intentClassifier struct {
	llm    domain.LLMClient
	logger *slog.Logger
}

// NewIntentClassifier creates a classifier that tries keyword rules first and
// falls back to an LLM label for queries the rules do not cover. A nil llm
// disables the fallback.
func NewIntentClassifier(llm domain.LLMClient, logger *slog.Logger) IntentClassifier {
	return &intentClassifier{llm: llm, logger: logger}
}

func (c *intentClassifier) Classify(ctx context.Context, query string) domain.Intent {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.IntentGeneral
	}

	for _, rule := range intentRules {
		if rule.pattern.MatchString(query) {
			c.logger.Debug("intent_classified_by_rule",
				slog.String("intent", rule.intent.String()))
			return rule.intent
		}
	}

	if c.llm == nil {
		return domain.IntentGeneral
	}
	return c.classifyWithLLM(ctx, query)
}

func (c *intentClassifier) classifyWithLLM(parent context.Context, query string) domain.Intent {
	ctx, cancel := context.WithTimeout(parent, intentClassificationTimeout)
	defer cancel()

	labels := make([]string, 0, len(domain.Intents()))
	for _, it := range domain.Intents() {
		labels = append(labels, it.String())
	}
	system := fmt.Sprintf(
		"You are an intent classifier for government scheme queries. "+
			"Classify the user query into ONE of the following labels only: [%s]\n"+
			"Return ONLY the label, nothing else.",
		strings.Join(labels, ", "))

	resp, err := c.llm.Generate(ctx, []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: query},
	}, domain.GenerateOptions{MaxTokens: 10})
	if err != nil {
		c.logger.Warn("intent_classification_failed", slog.String("error", err.Error()))
		return domain.IntentGeneral
	}

	intent := domain.ParseIntent(resp.Text)
	c.logger.Debug("intent_classified_by_llm", slog.String("intent", intent.String()))
	return intent
}
