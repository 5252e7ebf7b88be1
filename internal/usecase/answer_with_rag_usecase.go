package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"yojana-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// defaultMaxReflections bounds the judge-refine-retrieve loop before
	// generation.
	defaultMaxReflections = 2
	// defaultMaxCorrections bounds the judge-rewrite-regenerate loop after
	// generation.
	defaultMaxCorrections = 2

	defaultAnswerTokens = 1024
	defaultCacheSize    = 256
	defaultCacheTTL     = 15 * time.Minute

	judgeVerdictTokens = 5
	rewriteTokens      = 100
)

// AnswerWithRAGInput encapsulates the parameters that drive a grounded
// answer request. Intent is classified from the query when unset.
type AnswerWithRAGInput struct {
	Query     string
	Intent    domain.Intent
	TopK      int
	Theme     string
	MaxTokens int
}

// Citation connects a cited scheme to the metadata needed by callers.
type Citation struct {
	SchemeName string
	Ministry   string
	URL        string
	Theme      string
	Score      float64
}

// AnswerDebug surfaces metadata that aids troubleshooting and evaluation.
type AnswerDebug struct {
	AnswerSetID      string
	Intent           domain.Intent
	Retrieval        RetrieveMetadata
	ReflectionRounds int
	CorrectionRounds int
	FinalQuery       string
	CacheHit         bool
	ModelVersion     string
}

// AnswerWithRAGOutput represents the normalized answer response returned to
// API clients. Fallback is true when no grounded answer could be produced;
// Reason then explains why.
type AnswerWithRAGOutput struct {
	Answer    string
	Citations []Citation
	Documents []domain.ScoredDocument
	Fallback  bool
	Reason    string
	Debug     AnswerDebug
}

// AnswerWithRAGUsecase defines the contract for generating grounded answers.
type AnswerWithRAGUsecase interface {
	Execute(ctx context.Context, input AnswerWithRAGInput) (*AnswerWithRAGOutput, error)
}

// AnswerOption customizes the answer usecase.
type AnswerOption func(*answerWithRAGUsecase)

// WithCacheConfig sizes the answer cache. A size of zero or less disables
// caching.
func WithCacheConfig(size int, ttl time.Duration) AnswerOption {
	return func(u *answerWithRAGUsecase) {
		u.cacheSize = size
		u.cacheTTL = ttl
	}
}

// WithIntentClassifier installs the classifier used when the caller leaves
// the intent unset.
func WithIntentClassifier(classifier IntentClassifier) AnswerOption {
	return func(u *answerWithRAGUsecase) {
		u.classifier = classifier
	}
}

// WithLoopLimits overrides the reflection and correction budgets.
func WithLoopLimits(maxReflections, maxCorrections int) AnswerOption {
	return func(u *answerWithRAGUsecase) {
		u.maxReflections = maxReflections
		u.maxCorrections = maxCorrections
	}
}

// WithAnswerTokens overrides the generation budget used when a request does
// not set MaxTokens itself.
func WithAnswerTokens(tokens int) AnswerOption {
	return func(u *answerWithRAGUsecase) {
		if tokens > 0 {
			u.maxTokens = tokens
		}
	}
}

type answerWithRAGUsecase struct {
	retrieve   RetrieveContextUsecase
	prompts    PromptBuilder
	llm        domain.LLMClient
	validator  OutputValidator
	classifier IntentClassifier
	logger     *slog.Logger

	cache     *expirable.LRU[string, AnswerWithRAGOutput]
	cacheSize int
	cacheTTL  time.Duration

	maxReflections int
	maxCorrections int
	maxTokens      int
}

// NewAnswerWithRAGUsecase wires together the components of the answer flow.
func NewAnswerWithRAGUsecase(
	retrieve RetrieveContextUsecase,
	prompts PromptBuilder,
	llm domain.LLMClient,
	validator OutputValidator,
	logger *slog.Logger,
	opts ...AnswerOption,
) AnswerWithRAGUsecase {
	u := &answerWithRAGUsecase{
		retrieve:       retrieve,
		prompts:        prompts,
		llm:            llm,
		validator:      validator,
		logger:         logger,
		cacheSize:      defaultCacheSize,
		cacheTTL:       defaultCacheTTL,
		maxReflections: defaultMaxReflections,
		maxCorrections: defaultMaxCorrections,
		maxTokens:      defaultAnswerTokens,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.cacheSize > 0 {
		u.cache = expirable.NewLRU[string, AnswerWithRAGOutput](u.cacheSize, nil, u.cacheTTL)
	}
	return u
}

// answerState threads one request through the judge loops. The query mutates
// as refinement and correction rewrite it; the id does not.
type answerState struct {
	id          string
	query       string
	intent      domain.Intent
	topK        int
	theme       string
	docs        []domain.ScoredDocument
	retrieval   RetrieveMetadata
	answer      *LLMAnswer
	reflections int
	corrections int
}

// Execute runs the self-correcting answer flow: retrieve, judge relevance
// (refining the query when the judge rejects the set), generate, judge the
// answer (rewriting the query and regenerating when the judge flags it).
// Judge and rewrite failures degrade to the optimistic path; only the first
// retrieval being unavailable fails the request.
func (u *answerWithRAGUsecase) Execute(ctx context.Context, input AnswerWithRAGInput) (*AnswerWithRAGOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	cacheKey := answerCacheKey(query, input.Theme, input.TopK, input.Intent)
	if u.cache != nil {
		if cached, ok := u.cache.Get(cacheKey); ok {
			out := cached
			out.Debug.CacheHit = true
			u.logger.Info("answer_cache_hit",
				slog.String("answer_set_id", out.Debug.AnswerSetID))
			return &out, nil
		}
	}

	intent := input.Intent
	if intent == "" {
		intent = domain.IntentGeneral
		if u.classifier != nil {
			intent = u.classifier.Classify(ctx, query)
		}
	}

	state := &answerState{
		id:     uuid.NewString(),
		query:  query,
		intent: intent,
		topK:   input.TopK,
		theme:  input.Theme,
	}

	if err := u.retrieveInto(ctx, state); err != nil {
		return nil, fmt.Errorf("initial retrieval failed: %w", err)
	}

	for state.reflections < u.maxReflections {
		if !u.needsReflection(ctx, state) {
			break
		}
		refined := u.refineQuery(ctx, state.query)
		state.reflections++

		trial := *state
		trial.query = refined
		if err := u.retrieveInto(ctx, &trial); err != nil {
			u.logger.Warn("reflection_retrieval_failed",
				slog.String("answer_set_id", state.id),
				slog.String("error", err.Error()))
			break
		}
		u.logger.Info("query_refined",
			slog.String("answer_set_id", state.id),
			slog.Int("round", state.reflections),
			slog.Int("result_count", len(trial.docs)))
		*state = trial
	}

	if len(state.docs) == 0 {
		return u.prepareFallback(state, "no relevant schemes found"), nil
	}

	parsed, err := u.generate(ctx, state, input.MaxTokens)
	if err != nil {
		u.logger.Warn("answer_generation_degraded",
			slog.String("answer_set_id", state.id),
			slog.String("reason", err.Error()))
		return u.prepareFallback(state, err.Error()), nil
	}
	if parsed.Fallback || strings.TrimSpace(parsed.Answer) == "" {
		reason := parsed.Reason
		if reason == "" {
			reason = "model signaled fallback"
		}
		return u.prepareFallback(state, reason), nil
	}
	state.answer = parsed

	for state.corrections < u.maxCorrections {
		if !u.answerInadequate(ctx, state) {
			break
		}
		corrected := u.correctiveQuery(ctx, state.query)
		state.corrections++

		trial := *state
		trial.query = corrected
		if err := u.retrieveInto(ctx, &trial); err != nil || len(trial.docs) == 0 {
			// An inadequate answer still beats no answer.
			u.logger.Warn("corrective_retrieval_failed",
				slog.String("answer_set_id", state.id),
				slog.Int("round", state.corrections))
			break
		}
		regenerated, err := u.generate(ctx, &trial, input.MaxTokens)
		if err != nil || regenerated.Fallback || strings.TrimSpace(regenerated.Answer) == "" {
			u.logger.Warn("corrective_generation_failed",
				slog.String("answer_set_id", state.id),
				slog.Int("round", state.corrections))
			break
		}
		trial.answer = regenerated
		u.logger.Info("answer_corrected",
			slog.String("answer_set_id", state.id),
			slog.Int("round", state.corrections))
		*state = trial
	}

	out := &AnswerWithRAGOutput{
		Answer:    strings.TrimSpace(state.answer.Answer),
		Citations: buildCitations(state.docs, state.answer.Schemes),
		Documents: state.docs,
		Debug:     u.debug(state),
	}
	if u.cache != nil {
		u.cache.Add(cacheKey, *out)
	}

	u.logger.Info("answer_flow_completed",
		slog.String("answer_set_id", state.id),
		slog.String("intent", state.intent.String()),
		slog.Int("reflection_rounds", state.reflections),
		slog.Int("correction_rounds", state.corrections),
		slog.Int("citations", len(out.Citations)))
	return out, nil
}

func (u *answerWithRAGUsecase) retrieveInto(ctx context.Context, state *answerState) error {
	out, err := u.retrieve.Execute(ctx, RetrieveContextInput{
		Query:  state.query,
		Intent: state.intent,
		TopK:   state.topK,
		Theme:  state.theme,
	})
	if err != nil {
		return err
	}
	state.docs = out.Documents
	state.retrieval = out.Metadata
	return nil
}

// needsReflection asks the relevance judge whether the retrieved set can
// answer the query. A judge failure assumes relevance; an empty set always
// reflects.
func (u *answerWithRAGUsecase) needsReflection(ctx context.Context, state *answerState) bool {
	if len(state.docs) == 0 {
		return true
	}

	resp, err := u.llm.Generate(ctx, u.prompts.RelevanceJudgment(state.query, state.docs),
		domain.GenerateOptions{MaxTokens: judgeVerdictTokens})
	if err != nil {
		u.logger.Warn("relevance_judgment_failed",
			slog.String("answer_set_id", state.id),
			slog.String("error", err.Error()))
		return false
	}

	needs := strings.ToUpper(strings.TrimSpace(resp.Text)) == "NO"
	u.logger.Info("relevance_judged",
		slog.String("answer_set_id", state.id),
		slog.Bool("needs_reflection", needs))
	return needs
}

// answerInadequate asks the quality judge whether the generated answer
// addresses the query. A judge failure assumes adequacy.
func (u *answerWithRAGUsecase) answerInadequate(ctx context.Context, state *answerState) bool {
	resp, err := u.llm.Generate(ctx, u.prompts.AnswerQuality(state.query, state.answer.Answer),
		domain.GenerateOptions{MaxTokens: judgeVerdictTokens})
	if err != nil {
		u.logger.Warn("answer_quality_check_failed",
			slog.String("answer_set_id", state.id),
			slog.String("error", err.Error()))
		return false
	}

	inadequate := strings.ToUpper(strings.TrimSpace(resp.Text)) == "YES"
	u.logger.Info("answer_quality_judged",
		slog.String("answer_set_id", state.id),
		slog.Bool("inadequate", inadequate))
	return inadequate
}

// refineQuery rewrites the query for better retrieval, returning the
// original on any failure.
func (u *answerWithRAGUsecase) refineQuery(ctx context.Context, query string) string {
	resp, err := u.llm.Generate(ctx, u.prompts.QueryRefinement(query),
		domain.GenerateOptions{MaxTokens: rewriteTokens})
	if err != nil {
		u.logger.Warn("query_refinement_failed", slog.String("error", err.Error()))
		return query
	}
	refined := strings.TrimSpace(resp.Text)
	if refined == "" {
		return query
	}
	return refined
}

// correctiveQuery rewrites the query after an inadequate answer, returning
// the original on any failure.
func (u *answerWithRAGUsecase) correctiveQuery(ctx context.Context, query string) string {
	resp, err := u.llm.Generate(ctx, u.prompts.CorrectiveQuery(query),
		domain.GenerateOptions{MaxTokens: rewriteTokens})
	if err != nil {
		u.logger.Warn("corrective_query_failed", slog.String("error", err.Error()))
		return query
	}
	corrected := strings.TrimSpace(resp.Text)
	if corrected == "" {
		return query
	}
	return corrected
}

func (u *answerWithRAGUsecase) generate(ctx context.Context, state *answerState, maxTokens int) (*LLMAnswer, error) {
	if maxTokens <= 0 {
		maxTokens = u.maxTokens
	}

	contexts := make([]PromptContext, len(state.docs))
	for i, d := range state.docs {
		contexts[i] = PromptContext{
			SchemeName: d.Document.SchemeName,
			Theme:      d.Document.Theme,
			Ministry:   d.Document.Ministry,
			URL:        d.Document.URL,
			Score:      d.Score,
			Text:       d.Document.Text,
		}
	}

	messages, err := u.prompts.Answer(AnswerPromptInput{
		Query:    state.query,
		Intent:   state.intent,
		Contexts: contexts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	resp, err := u.llm.Generate(ctx, messages, domain.GenerateOptions{
		MaxTokens: maxTokens,
		Format:    answerResponseFormat(),
	})
	if err != nil {
		return nil, fmt.Errorf("llm generation failed: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, errors.New("empty llm response")
	}
	if !resp.Done {
		return nil, errors.New("llm response incomplete")
	}

	parsed, err := u.validator.Validate(resp.Text, state.docs)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return parsed, nil
}

// prepareFallback builds the degraded response. Fallbacks are never cached;
// a transient failure must not stick for the TTL.
func (u *answerWithRAGUsecase) prepareFallback(state *answerState, reason string) *AnswerWithRAGOutput {
	return &AnswerWithRAGOutput{
		Fallback:  true,
		Reason:    reason,
		Documents: state.docs,
		Debug:     u.debug(state),
	}
}

func (u *answerWithRAGUsecase) debug(state *answerState) AnswerDebug {
	return AnswerDebug{
		AnswerSetID:      state.id,
		Intent:           state.intent,
		Retrieval:        state.retrieval,
		ReflectionRounds: state.reflections,
		CorrectionRounds: state.corrections,
		FinalQuery:       state.query,
		ModelVersion:     u.llm.Version(),
	}
}

// buildCitations resolves cited scheme names against the retrieved set,
// keeping the highest scored chunk per scheme and dropping duplicates.
func buildCitations(docs []domain.ScoredDocument, cited []string) []Citation {
	best := make(map[string]domain.ScoredDocument, len(docs))
	for _, d := range docs {
		key := strings.ToLower(d.Document.SchemeName)
		if _, ok := best[key]; !ok {
			best[key] = d
		}
	}

	var citations []Citation
	seen := make(map[string]bool)
	for _, name := range cited {
		key := strings.ToLower(strings.TrimSpace(name))
		doc, ok := best[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, Citation{
			SchemeName: doc.Document.SchemeName,
			Ministry:   doc.Document.Ministry,
			URL:        doc.Document.URL,
			Theme:      doc.Document.Theme,
			Score:      doc.Score,
		})
	}
	return citations
}

// answerCacheKey normalizes the query so trivially different phrasings of
// the same request share a slot. The caller-supplied intent is part of the
// key because it changes retrieval depth and fusion weights; requests that
// leave it to the classifier share one slot.
func answerCacheKey(query, theme string, topK int, intent domain.Intent) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return fmt.Sprintf("%s|%s|%d|%s", normalized, strings.ToLower(theme), topK, intent)
}

// answerResponseFormat is the JSON schema handed to the model as a
// structured output constraint.
func answerResponseFormat() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"answer": map[string]interface{}{"type": "string"},
			"schemes": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"fallback": map[string]interface{}{"type": "boolean"},
			"reason":   map[string]interface{}{"type": "string"},
		},
		"required": []string{"answer", "schemes", "fallback"},
	}
}
