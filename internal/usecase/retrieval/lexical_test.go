package retrieval_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"yojana-orchestrator/internal/domain"
	"yojana-orchestrator/internal/usecase/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stubs ---

// stubCorpus is an in-memory domain.VectorIndex shared by the tests in this
// package. Scroll and SchemeNames derive from docs; Search is scripted via
// searchFn.
type stubCorpus struct {
	mu   sync.Mutex
	docs []domain.SchemeDocument

	searchFn func(filter domain.SearchFilter, limit int) ([]domain.VectorHit, error)
	scrollFn func(filter domain.SearchFilter) ([]domain.SchemeDocument, error)
	countErr error

	searchCalls atomic.Int32
	scrollCalls atomic.Int32
	countCalls  atomic.Int32
}

func (s *stubCorpus) Search(_ context.Context, _ []float32, filter domain.SearchFilter, limit int) ([]domain.VectorHit, error) {
	s.searchCalls.Add(1)
	if s.searchFn != nil {
		return s.searchFn(filter, limit)
	}
	return nil, nil
}

func (s *stubCorpus) Scroll(_ context.Context, filter domain.SearchFilter) ([]domain.SchemeDocument, error) {
	s.scrollCalls.Add(1)
	if s.scrollFn != nil {
		return s.scrollFn(filter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SchemeDocument
	for _, d := range s.docs {
		if matchesFilter(d, filter) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubCorpus) Count(_ context.Context) (int, error) {
	s.countCalls.Add(1)
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs), nil
}

func (s *stubCorpus) SchemeNames(_ context.Context) ([]string, error) {
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

func (s *stubCorpus) addDoc(d domain.SchemeDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, d)
}

func matchesFilter(d domain.SchemeDocument, f domain.SearchFilter) bool {
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// --- tests ---

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"pm", "kisan", "scheme"}, retrieval.Tokenize("PM-KISAN scheme!"))
	assert.Equal(t, []string{"कमल", "yojana", "2024"}, retrieval.Tokenize("कमल Yojana-2024"))
	assert.Empty(t, retrieval.Tokenize("  ... !!! "))
}

func TestLexicalIndex_RanksFullTermOverlapFirst(t *testing.T) {
	corpus := &stubCorpus{docs: []domain.SchemeDocument{
		{ID: "d1", SchemeName: "PMEGP", Theme: "eligibility", Text: "women entrepreneurs can apply for the margin money subsidy"},
		{ID: "d2", SchemeName: "PMEGP", Theme: "benefits", Text: "subsidy for new manufacturing units"},
		{ID: "d3", SchemeName: "MUDRA", Theme: "general", Text: "loan guarantee corpus fund details"},
	}}
	index := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	require.NoError(t, index.Ensure(context.Background(), corpus))

	hits := index.ScoreAll("women entrepreneurs subsidy", 0)
	require.NotEmpty(t, hits)
	assert.Equal(t, "d1", hits[0].Document.ID)
	assert.Equal(t, 1, hits[0].Rank)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Score, hits[i-1].Score)
	}
	// d3 shares no query term and must be omitted.
	for _, h := range hits {
		assert.NotEqual(t, "d3", h.Document.ID)
	}
}

func TestLexicalIndex_Score_ZeroForNoOverlapAndUnknownIDs(t *testing.T) {
	corpus := &stubCorpus{docs: []domain.SchemeDocument{
		{ID: "d1", SchemeName: "PMEGP", Text: "collateral free loans"},
		{ID: "d2", SchemeName: "MUDRA", Text: "refinance support for banks"},
	}}
	index := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	require.NoError(t, index.Ensure(context.Background(), corpus))

	scores := index.Score("collateral free", []string{"d1", "d2", "missing"})
	assert.Greater(t, scores["d1"], 0.0)
	assert.Zero(t, scores["d2"])
	assert.Zero(t, scores["missing"])
}

func TestLexicalIndex_ScoreSubset_HandlesUnindexedDocuments(t *testing.T) {
	corpus := &stubCorpus{docs: []domain.SchemeDocument{
		{ID: "d1", SchemeName: "PMEGP", Text: "women beneficiaries get a higher subsidy rate"},
		{ID: "d2", SchemeName: "PMEGP", Text: "project cost ceiling for the service sector"},
	}}
	index := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	require.NoError(t, index.Ensure(context.Background(), corpus))

	// d9 arrived after the build; it is scored on the fly with corpus stats.
	fresh := domain.SchemeDocument{ID: "d9", SchemeName: "PMEGP", Text: "women applicants in rural areas"}
	hits := index.ScoreSubset("women", append([]domain.SchemeDocument{fresh}, corpus.docs...))
	require.Len(t, hits, 2)
	ids := []string{hits[0].Document.ID, hits[1].Document.ID}
	assert.Contains(t, ids, "d1")
	assert.Contains(t, ids, "d9")
}

func TestLexicalIndex_EmptyCorpusScoresZero(t *testing.T) {
	corpus := &stubCorpus{}
	index := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	require.NoError(t, index.Ensure(context.Background(), corpus))

	assert.Empty(t, index.ScoreAll("anything", 0))
	scores := index.Score("anything", []string{"x"})
	assert.Zero(t, scores["x"])
}

func TestLexicalIndex_BuildsOnceUnderConcurrency(t *testing.T) {
	corpus := &stubCorpus{docs: []domain.SchemeDocument{
		{ID: "d1", SchemeName: "PMEGP", Text: "margin money subsidy"},
		{ID: "d2", SchemeName: "MUDRA", Text: "shishu kishore tarun loans"},
	}}
	index := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, index.Ensure(context.Background(), corpus))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), corpus.scrollCalls.Load(), "concurrent callers must share one build")
}

func TestLexicalIndex_RebuildsWhenCorpusGrows(t *testing.T) {
	corpus := &stubCorpus{docs: []domain.SchemeDocument{
		{ID: "d1", SchemeName: "PMEGP", Text: "margin money subsidy"},
	}}
	index := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	require.NoError(t, index.Ensure(context.Background(), corpus))
	require.NoError(t, index.Ensure(context.Background(), corpus))
	assert.Equal(t, int32(1), corpus.scrollCalls.Load())

	corpus.addDoc(domain.SchemeDocument{ID: "d2", SchemeName: "MUDRA", Text: "kishore loan bracket"})
	require.NoError(t, index.Ensure(context.Background(), corpus))
	assert.Equal(t, int32(2), corpus.scrollCalls.Load())

	hits := index.ScoreAll("kishore", 0)
	require.Len(t, hits, 1)
	assert.Equal(t, "d2", hits[0].Document.ID)
}

func TestLexicalIndex_EnsurePropagatesCountFailure(t *testing.T) {
	corpus := &stubCorpus{countErr: errors.New("connection refused")}
	index := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())

	err := index.Ensure(context.Background(), corpus)
	require.Error(t, err)
	assert.True(t, domain.IsUpstream(err))
}

func TestLexicalConfig_Validate(t *testing.T) {
	assert.NoError(t, retrieval.DefaultLexicalConfig().Validate())
	assert.Error(t, retrieval.LexicalConfig{K1: 0, B: 0.5}.Validate())
	assert.Error(t, retrieval.LexicalConfig{K1: 1.2, B: 1.5}.Validate())
}
