package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"yojana-orchestrator/internal/domain"
	"yojana-orchestrator/internal/usecase"
	"yojana-orchestrator/internal/usecase/retrieval"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stubs (shared by the facade and answer flow tests in this package) ---

// stubVectorIndex is an in-memory domain.VectorIndex. The default Search
// honors the filter and limit and scores hits 0.9, 0.85, 0.8, ... in corpus
// order; searchFn overrides it.
type stubVectorIndex struct {
	mu   sync.Mutex
	docs []domain.SchemeDocument

	searchFn    func(filter domain.SearchFilter, limit int) ([]domain.VectorHit, error)
	searchCalls int
	limits      []int
}

func (s *stubVectorIndex) Search(_ context.Context, _ []float32, filter domain.SearchFilter, limit int) ([]domain.VectorHit, error) {
	s.mu.Lock()
	s.searchCalls++
	s.limits = append(s.limits, limit)
	fn := s.searchFn
	docs := append([]domain.SchemeDocument(nil), s.docs...)
	s.mu.Unlock()

	if fn != nil {
		return fn(filter, limit)
	}
	var hits []domain.VectorHit
	for _, d := range docs {
		if !schemeFilterMatches(d, filter) {
			continue
		}
		hits = append(hits, domain.VectorHit{Document: d, Score: 0.9 - 0.05*float64(len(hits))})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

func (s *stubVectorIndex) Scroll(_ context.Context, filter domain.SearchFilter) ([]domain.SchemeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SchemeDocument
	for _, d := range s.docs {
		if schemeFilterMatches(d, filter) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubVectorIndex) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs), nil
}

func (s *stubVectorIndex) SchemeNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var names []string
	for _, d := range s.docs {
		if !seen[d.SchemeName] {
			seen[d.SchemeName] = true
			names = append(names, d.SchemeName)
		}
	}
	return names, nil
}

func (s *stubVectorIndex) callStats() (calls int, limits []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchCalls, append([]int(nil), s.limits...)
}

func schemeFilterMatches(d domain.SchemeDocument, f domain.SearchFilter) bool {
	if f.Theme != "" && d.Theme != f.Theme {
		return false
	}
	if len(f.SchemeNames) == 0 {
		return true
	}
	for _, name := range f.SchemeNames {
		if d.SchemeName == name {
			return true
		}
	}
	return false
}

// stubEncoder returns a fixed embedding per text, or fails wholesale.
type stubEncoder struct {
	err error
}

func (e *stubEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (e *stubEncoder) Version() string { return "stub-embedder" }

type stubCatalog struct {
	names []string
	err   error
}

func (c *stubCatalog) SchemeNames(context.Context) ([]string, error) {
	return c.names, c.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newRetrieveUsecase(index domain.VectorIndex, encoder domain.VectorEncoder, catalogNames []string) usecase.RetrieveContextUsecase {
	logger := testLogger()
	decomposer := retrieval.NewDecomposer(&stubCatalog{names: catalogNames}, nil, logger)
	lexical := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), logger)
	return usecase.NewRetrieveContextUsecase(index, encoder, decomposer, lexical, usecase.DefaultRetrievalConfig(), logger)
}

// pmegpCorpus builds a five document corpus where four chunks belong to the
// PMEGP scheme and each contains the term "subsidy" exactly once. The token
// counts are balanced so the BM25 score of every PMEGP chunk for the query
// "PMEGP subsidy" lands just below 0.3.
func pmegpCorpus() *stubVectorIndex {
	const pmegp = "Prime Minister Employment Generation Programme"
	return &stubVectorIndex{docs: []domain.SchemeDocument{
		{ID: "peg-1", SchemeName: pmegp, Theme: "benefits", Text: "margin money subsidy for rural projects"},
		{ID: "peg-2", SchemeName: pmegp, Theme: "benefits", Text: "urban applicants get subsidy of fifteen"},
		{ID: "peg-3", SchemeName: pmegp, Theme: "benefits", Text: "special category subsidy rises to thirtyfive"},
		{ID: "peg-4", SchemeName: pmegp, Theme: "benefits", Text: "own contribution drops when subsidy applies"},
		{ID: "sva-1", SchemeName: "PM SVANidhi", Theme: "benefits", Text: "street vendors receive working capital loans"},
	}}
}

// --- tests ---

func TestRetrieveContext_EmptyQueryIsRejected(t *testing.T) {
	uc := newRetrieveUsecase(&stubVectorIndex{}, &stubEncoder{}, nil)

	_, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{Query: "   "})

	require.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestRetrieveContext_OpenQueryUsesHybridStage(t *testing.T) {
	index := &stubVectorIndex{docs: []domain.SchemeDocument{
		{ID: "d1", SchemeName: "PM SVANidhi", Theme: "benefits", Text: "working capital loans for street vendors without collateral"},
		{ID: "d2", SchemeName: "Stand Up India", Theme: "benefits", Text: "bank loans for women and SC ST entrepreneurs"},
		{ID: "d3", SchemeName: "PM Kisan", Theme: "benefits", Text: "income support for farmer families"},
	}}
	uc := newRetrieveUsecase(index, &stubEncoder{}, []string{"Atal Pension Yojana"})

	out, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{
		Query: "collateral free loans for street vendors",
	})

	require.NoError(t, err)
	require.NotEmpty(t, out.Documents)
	assert.Equal(t, "hybrid", out.Metadata.Stage)
	assert.Equal(t, domain.ModeOpen, out.Metadata.Decomposition.Mode)
	assert.Empty(t, out.Metadata.Decomposition.DetectedSchemes)
	_, parseErr := uuid.Parse(out.Metadata.RetrievalID)
	assert.NoError(t, parseErr)
	for _, doc := range out.Documents {
		assert.GreaterOrEqual(t, doc.Score, 0.0)
		assert.LessOrEqual(t, doc.Score, 1.0)
	}
}

func TestRetrieveContext_SchemeQueryStaysFiltered(t *testing.T) {
	index := &stubVectorIndex{docs: []domain.SchemeDocument{
		{ID: "sva-1", SchemeName: "PM SVANidhi", Theme: "benefits", Text: "first tranche of ten thousand rupees"},
		{ID: "sva-2", SchemeName: "PM SVANidhi", Theme: "eligibility", Text: "street vendors with a certificate of vending"},
		{ID: "sva-3", SchemeName: "PM SVANidhi", Theme: "application-steps", Text: "apply through the municipal survey list"},
		{ID: "peg-1", SchemeName: "PMEGP", Theme: "benefits", Text: "margin money subsidy for new enterprises"},
	}}
	uc := newRetrieveUsecase(index, &stubEncoder{}, []string{"PM SVANidhi", "PMEGP"})

	out, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{
		Query: "What is the loan amount under PM SVANidhi?",
	})

	require.NoError(t, err)
	require.NotEmpty(t, out.Documents)
	assert.Equal(t, "filtered_vector", out.Metadata.Stage)
	assert.Equal(t, domain.ModeFiltered, out.Metadata.Decomposition.Mode)
	assert.Equal(t, []string{"PM SVANidhi"}, out.Metadata.Decomposition.DetectedSchemes)
	for _, doc := range out.Documents {
		assert.Equal(t, "PM SVANidhi", doc.Document.SchemeName)
	}
}

func TestRetrieveContext_TopKDefaultsPerIntent(t *testing.T) {
	index := pmegpCorpus()
	uc := newRetrieveUsecase(index, &stubEncoder{}, []string{"Prime Minister Employment Generation Programme"})

	_, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{
		Query:  "PMEGP subsidy",
		Intent: domain.IntentDiscovery,
	})
	require.NoError(t, err)

	_, err = uc.Execute(context.Background(), usecase.RetrieveContextInput{
		Query:  "PMEGP subsidy",
		Intent: domain.IntentEligibility,
	})
	require.NoError(t, err)

	_, limits := index.callStats()
	require.Len(t, limits, 2)
	assert.Equal(t, 10, limits[0], "discovery gets the wide budget")
	assert.Equal(t, 5, limits[1], "eligibility gets the narrow budget")
}

func TestRetrieveContext_EmptyCorpusYieldsEmptyResultNotError(t *testing.T) {
	uc := newRetrieveUsecase(&stubVectorIndex{}, &stubEncoder{}, nil)

	out, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{
		Query: "housing schemes for widows",
	})

	require.NoError(t, err)
	require.NotNil(t, out.Documents)
	assert.Empty(t, out.Documents)
	assert.Equal(t, "hybrid", out.Metadata.Stage)
	assert.Equal(t, domain.ThresholdMethodDefaultEmpty, out.Metadata.Threshold.Method)
	assert.Zero(t, out.Metadata.CandidateCount)
}

func TestRetrieveContext_RepeatQueryIsDeterministic(t *testing.T) {
	index := &stubVectorIndex{docs: []domain.SchemeDocument{
		{ID: "d1", SchemeName: "PM Awas Yojana", Theme: "benefits", Text: "interest subsidy on housing loans"},
		{ID: "d2", SchemeName: "PM Awas Yojana", Theme: "eligibility", Text: "families without a pucca house"},
		{ID: "d3", SchemeName: "PM Kisan", Theme: "benefits", Text: "income support for landholding farmers"},
	}}
	uc := newRetrieveUsecase(index, &stubEncoder{}, nil)
	input := usecase.RetrieveContextInput{Query: "housing subsidy for poor families"}

	first, err := uc.Execute(context.Background(), input)
	require.NoError(t, err)
	second, err := uc.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first.Documents, second.Documents)
	assert.Equal(t, first.Metadata.Stage, second.Metadata.Stage)
	assert.Equal(t, first.Metadata.Threshold.Threshold, second.Metadata.Threshold.Threshold)
}

func TestRetrieveContext_LexicalFallbackLiftsAbsoluteFloor(t *testing.T) {
	index := pmegpCorpus()
	index.searchFn = func(domain.SearchFilter, int) ([]domain.VectorHit, error) {
		return nil, assert.AnError
	}
	uc := newRetrieveUsecase(index, &stubEncoder{}, []string{"Prime Minister Employment Generation Programme"})

	out, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{
		Query: "PMEGP subsidy",
	})

	require.NoError(t, err)
	assert.Equal(t, "bm25_reranked", out.Metadata.Stage)
	// Every PMEGP chunk scores ~0.28 on the raw BM25 scale. With the floor
	// pinned at the cosine-space 0.3 they would all be cut down to the
	// min-docs guarantee; with the floor lifted they all pass.
	assert.Len(t, out.Documents, 4)
	assert.Equal(t, domain.ThresholdMethodAdaptive, out.Metadata.Threshold.Method)
	for _, doc := range out.Documents {
		assert.Less(t, doc.Score, 0.3)
		assert.True(t, doc.Lexical)
	}
}

func TestRetrieveContext_EncoderFailureDegradesToLexical(t *testing.T) {
	index := pmegpCorpus()
	uc := newRetrieveUsecase(index, &stubEncoder{err: assert.AnError}, []string{"Prime Minister Employment Generation Programme"})

	out, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{
		Query: "PMEGP subsidy",
	})

	require.NoError(t, err)
	assert.Equal(t, "bm25_reranked", out.Metadata.Stage)
	require.NotEmpty(t, out.Documents)

	calls, _ := index.callStats()
	assert.Zero(t, calls, "vector search must not run without an embedding")
}

func TestRetrieveContext_ComparisonMetadataPassesThrough(t *testing.T) {
	index := &stubVectorIndex{docs: []domain.SchemeDocument{
		{ID: "sva-1", SchemeName: "PM SVANidhi", Theme: "benefits", Text: "working capital loan tranches"},
		{ID: "sva-2", SchemeName: "PM SVANidhi", Theme: "eligibility", Text: "street vendors in urban areas"},
		{ID: "mud-1", SchemeName: "PM Mudra Yojana", Theme: "benefits", Text: "loans up to ten lakh rupees"},
		{ID: "mud-2", SchemeName: "PM Mudra Yojana", Theme: "eligibility", Text: "non corporate small businesses"},
	}}
	uc := newRetrieveUsecase(index, &stubEncoder{}, []string{"PM SVANidhi", "PM Mudra Yojana"})

	out, err := uc.Execute(context.Background(), usecase.RetrieveContextInput{
		Query:  "Compare PM SVANidhi with PM Mudra Yojana for small vendors",
		Intent: domain.IntentComparison,
	})

	require.NoError(t, err)
	assert.Equal(t, "filtered_vector", out.Metadata.Stage)
	assert.Equal(t, 4, out.Metadata.CandidateCount)

	byScheme := make(map[string]int)
	for _, doc := range out.Documents {
		byScheme[doc.Document.SchemeName]++
	}
	assert.Positive(t, byScheme["PM SVANidhi"])
	assert.Positive(t, byScheme["PM Mudra Yojana"])

	calls, _ := index.callStats()
	assert.Equal(t, 2, calls, "one filtered search per compared scheme")
}
