package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"yojana-orchestrator/internal/domain"
	"yojana-orchestrator/internal/usecase/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hybridStageContext(query string, topK int) *retrieval.StageContext {
	return &retrieval.StageContext{
		RetrievalID:    "test-hybrid",
		Query:          query,
		Intent:         domain.IntentGeneral,
		TopK:           topK,
		QueryEmbedding: []float32{0.1, 0.2, 0.3},
	}
}

func TestRetrieveHybrid_DualSourceDocumentRanksFirst(t *testing.T) {
	docA := domain.SchemeDocument{ID: "a", SchemeName: "PMEGP", Text: "subsidy loans guidance"}
	docB := domain.SchemeDocument{ID: "b", SchemeName: "PMEGP", Text: "subsidy rates explained"}
	docC := domain.SchemeDocument{ID: "c", SchemeName: "MUDRA", Text: "dairy infrastructure fund"}
	corpus := &stubCorpus{
		docs: []domain.SchemeDocument{docA, docB, docC},
		searchFn: func(filter domain.SearchFilter, _ int) ([]domain.VectorHit, error) {
			require.True(t, filter.IsZero(), "open mode must search unfiltered")
			return []domain.VectorHit{{Document: docA, Score: 0.9}, {Document: docC, Score: 0.85}}, nil
		},
	}
	lexical := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	sc := hybridStageContext("subsidy loans", 5)

	err := retrieval.RetrieveHybrid(context.Background(), sc, corpus, lexical, retrieval.DefaultHybridConfig(), testLogger())
	require.NoError(t, err)

	require.NotEmpty(t, sc.Candidates)
	assert.Equal(t, retrieval.StageHybrid, sc.Stage)
	assert.Equal(t, "a", sc.Candidates[0].Document.ID, "document ranked by both legs outranks single-source documents")
	assert.True(t, sc.Candidates[0].Lexical)
	assert.True(t, sc.Candidates[0].Semantic)

	byID := make(map[string]domain.ScoredDocument)
	for _, c := range sc.Candidates {
		byID[c.Document.ID] = c
	}
	require.Contains(t, byID, "b")
	assert.True(t, byID["b"].Lexical)
	assert.False(t, byID["b"].Semantic)
	require.Contains(t, byID, "c")
	assert.False(t, byID["c"].Lexical)
	assert.True(t, byID["c"].Semantic)

	for _, c := range sc.Candidates {
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
	}
}

func TestRetrieveHybrid_LexicalOnlyMatchSurvivesFusion(t *testing.T) {
	docM := domain.SchemeDocument{ID: "m", SchemeName: "PMEGP", Text: "manufacturing cluster grant for new units"}
	docN := domain.SchemeDocument{ID: "n", SchemeName: "PMAY", Text: "urban housing aid"}
	corpus := &stubCorpus{
		docs: []domain.SchemeDocument{docM, docN},
		searchFn: func(_ domain.SearchFilter, _ int) ([]domain.VectorHit, error) {
			return []domain.VectorHit{{Document: docN, Score: 0.8}}, nil
		},
	}
	lexical := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	sc := hybridStageContext("manufacturing subsidy schemes", 5)

	err := retrieval.RetrieveHybrid(context.Background(), sc, corpus, lexical, retrieval.DefaultHybridConfig(), testLogger())
	require.NoError(t, err)

	ids := make([]string, 0, len(sc.Candidates))
	for _, c := range sc.Candidates {
		ids = append(ids, c.Document.ID)
	}
	assert.Contains(t, ids, "m", "a lexical-only match still reaches the final list")
	assert.Contains(t, ids, "n")
}

func TestRetrieveHybrid_SemanticLegFailureDegrades(t *testing.T) {
	corpus := &stubCorpus{
		docs: []domain.SchemeDocument{
			{ID: "d1", SchemeName: "PMEGP", Text: "margin money subsidy rates"},
		},
		searchFn: func(_ domain.SearchFilter, _ int) ([]domain.VectorHit, error) {
			return nil, errors.New("vector store timeout")
		},
	}
	lexical := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	sc := hybridStageContext("margin money", 5)

	err := retrieval.RetrieveHybrid(context.Background(), sc, corpus, lexical, retrieval.DefaultHybridConfig(), testLogger())
	require.NoError(t, err)

	require.Len(t, sc.StageFailures, 1)
	assert.True(t, domain.IsUpstream(sc.StageFailures[0]))
	require.NotEmpty(t, sc.Candidates)
	assert.True(t, sc.Candidates[0].Lexical)
	assert.False(t, sc.Candidates[0].Semantic)
}

func TestRetrieveHybrid_MissingEmbeddingUsesLexicalLeg(t *testing.T) {
	corpus := &stubCorpus{
		docs: []domain.SchemeDocument{
			{ID: "d1", SchemeName: "PMEGP", Text: "khadi institutions subsidy"},
		},
	}
	lexical := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	sc := hybridStageContext("khadi subsidy", 5)
	sc.QueryEmbedding = nil

	err := retrieval.RetrieveHybrid(context.Background(), sc, corpus, lexical, retrieval.DefaultHybridConfig(), testLogger())
	require.NoError(t, err)

	assert.Len(t, sc.StageFailures, 1)
	assert.NotEmpty(t, sc.Candidates)
}

func TestRetrieveHybrid_BothLegsFailing(t *testing.T) {
	corpus := &stubCorpus{
		countErr: errors.New("db unreachable"),
		searchFn: func(_ domain.SearchFilter, _ int) ([]domain.VectorHit, error) {
			return nil, errors.New("vector store down")
		},
	}
	lexical := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	sc := hybridStageContext("anything", 5)

	err := retrieval.RetrieveHybrid(context.Background(), sc, corpus, lexical, retrieval.DefaultHybridConfig(), testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetrievalUnavailable)
	assert.Len(t, sc.StageFailures, 2)
}

func TestRetrieveHybrid_EmptyCorpusIsNotAnError(t *testing.T) {
	corpus := &stubCorpus{
		searchFn: func(_ domain.SearchFilter, _ int) ([]domain.VectorHit, error) {
			return nil, nil
		},
	}
	lexical := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	sc := hybridStageContext("schemes for weavers", 5)

	err := retrieval.RetrieveHybrid(context.Background(), sc, corpus, lexical, retrieval.DefaultHybridConfig(), testLogger())
	require.NoError(t, err)
	assert.Empty(t, sc.Candidates)
	assert.Empty(t, sc.StageFailures)
	assert.Equal(t, retrieval.StageHybrid, sc.Stage)
}

func TestRetrieveHybrid_TruncatesToTopK(t *testing.T) {
	docs := []domain.SchemeDocument{
		{ID: "d1", SchemeName: "A", Text: "solar pump subsidy"},
		{ID: "d2", SchemeName: "B", Text: "solar rooftop subsidy"},
		{ID: "d3", SchemeName: "C", Text: "solar park subsidy"},
		{ID: "d4", SchemeName: "D", Text: "solar fence subsidy"},
	}
	corpus := &stubCorpus{
		docs: docs,
		searchFn: func(_ domain.SearchFilter, _ int) ([]domain.VectorHit, error) {
			return []domain.VectorHit{{Document: docs[0], Score: 0.9}, {Document: docs[1], Score: 0.8}}, nil
		},
	}
	lexical := retrieval.NewLexicalIndex(retrieval.DefaultLexicalConfig(), testLogger())
	sc := hybridStageContext("solar subsidy", 2)

	err := retrieval.RetrieveHybrid(context.Background(), sc, corpus, lexical, retrieval.DefaultHybridConfig(), testLogger())
	require.NoError(t, err)
	assert.Len(t, sc.Candidates, 2)
}

func TestHybridConfig_Validate(t *testing.T) {
	assert.NoError(t, retrieval.DefaultHybridConfig().Validate())

	bad := retrieval.DefaultHybridConfig()
	bad.RRFK = 0
	assert.Error(t, bad.Validate())

	bad = retrieval.DefaultHybridConfig()
	bad.FetchMultiplier = 0
	assert.Error(t, bad.Validate())
}
