package retrieval_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"yojana-orchestrator/internal/domain"
	"yojana-orchestrator/internal/usecase/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// --- stubs ---

type stubCatalog struct {
	names []string
	err   error
	calls atomic.Int32
}

func (s *stubCatalog) SchemeNames(_ context.Context) ([]string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.names, nil
}

type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Generate(ctx context.Context, messages []domain.Message, opts domain.GenerateOptions) (*domain.LLMResponse, error) {
	args := m.Called(ctx, messages, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LLMResponse), args.Error(1)
}

func (m *mockLLMClient) Version() string {
	return "mock-llm-v1"
}

// --- tests ---

func TestBuildVariations(t *testing.T) {
	variants := retrieval.BuildVariations([]string{
		"Pradhan Mantri Mudra Yojana",
		"PM-KISAN",
		"Stand Up India",
	})

	aliases := make(map[string]string)
	for _, v := range variants {
		aliases[v.Alias] = v.Canonical
	}

	assert.Equal(t, "Pradhan Mantri Mudra Yojana", aliases["Pradhan Mantri Mudra Yojana"])
	assert.Equal(t, "Pradhan Mantri Mudra Yojana", aliases["PMMY"], "four capitalized words derive an acronym")
	assert.Equal(t, "PM-KISAN", aliases["PM-KISAN"])
	assert.Equal(t, "PM-KISAN", aliases["PMKISAN"], "special characters strip into a plain alias")
	assert.Equal(t, "Stand Up India", aliases["SUI"])
	_, hasTwoWordAcronym := aliases["PK"]
	assert.False(t, hasTwoWordAcronym, "one- and two-word names derive no acronym")
}

func TestMatchSchemes_WholeWordCaseInsensitive(t *testing.T) {
	variants := retrieval.BuildVariations([]string{"PMEGP", "Pradhan Mantri Mudra Yojana"})

	assert.Equal(t, []string{"PMEGP"}, retrieval.MatchSchemes("Is pmegp open to traders?", variants))
	assert.Empty(t, retrieval.MatchSchemes("the XPMEGPY initiative", variants), "substring inside a longer word must not match")
	assert.Equal(t, []string{"Pradhan Mantri Mudra Yojana"}, retrieval.MatchSchemes("Can I get a PMMY loan?", variants))

	both := retrieval.MatchSchemes("Compare PMEGP and PMMY please", variants)
	assert.Equal(t, []string{"PMEGP", "Pradhan Mantri Mudra Yojana"}, both)
}

func TestDecomposer_FastPathSkipsLLM(t *testing.T) {
	catalog := &stubCatalog{names: []string{"PMEGP", "MUDRA"}}
	llm := new(mockLLMClient)
	d := retrieval.NewDecomposer(catalog, llm, testLogger())

	result := d.Decompose(context.Background(), "What is the PMEGP subsidy rate?")

	assert.Equal(t, domain.ModeFiltered, result.Mode)
	assert.Equal(t, []string{"PMEGP"}, result.DetectedSchemes)
	llm.AssertNotCalled(t, "Generate")
}

func TestDecomposer_LLMFallbackValidatesAgainstCatalog(t *testing.T) {
	catalog := &stubCatalog{names: []string{"PMEGP", "MUDRA"}}
	llm := new(mockLLMClient)
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(msgs []domain.Message) bool {
		return len(msgs) == 1 && strings.Contains(msgs[0].Content, "street vendors")
	}), mock.Anything).Return(&domain.LLMResponse{Text: "MUDRA, Imaginary Scheme"}, nil)

	d := retrieval.NewDecomposer(catalog, llm, testLogger())
	result := d.Decompose(context.Background(), "collateral free working capital loans for street vendors")

	assert.Equal(t, domain.ModeFiltered, result.Mode)
	assert.Equal(t, []string{"MUDRA"}, result.DetectedSchemes, "names outside the catalog are discarded")
}

func TestDecomposer_LLMNoneSentinelMeansOpenMode(t *testing.T) {
	catalog := &stubCatalog{names: []string{"PMEGP"}}
	llm := new(mockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&domain.LLMResponse{Text: "NONE"}, nil)

	d := retrieval.NewDecomposer(catalog, llm, testLogger())
	result := d.Decompose(context.Background(), "any schemes for dairy farmers?")

	assert.Equal(t, domain.ModeOpen, result.Mode)
	assert.Empty(t, result.DetectedSchemes)
}

func TestDecomposer_LLMFailureDegradesToOpenMode(t *testing.T) {
	catalog := &stubCatalog{names: []string{"PMEGP"}}
	llm := new(mockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("model offline"))

	d := retrieval.NewDecomposer(catalog, llm, testLogger())
	result := d.Decompose(context.Background(), "help with food processing units")

	assert.Equal(t, domain.ModeOpen, result.Mode)
	assert.Empty(t, result.DetectedSchemes)
}

func TestDecomposer_CatalogFailureDegradesToOpenMode(t *testing.T) {
	catalog := &stubCatalog{err: errors.New("db down")}
	d := retrieval.NewDecomposer(catalog, nil, testLogger())

	result := d.Decompose(context.Background(), "anything about PMEGP")

	assert.Equal(t, domain.ModeOpen, result.Mode)
	assert.Empty(t, result.DetectedSchemes)
}

func TestDecomposer_CachesVariationsAcrossCalls(t *testing.T) {
	catalog := &stubCatalog{names: []string{"PMEGP"}}
	d := retrieval.NewDecomposer(catalog, nil, testLogger())

	d.Decompose(context.Background(), "PMEGP loan limit")
	d.Decompose(context.Background(), "PMEGP margin money")

	assert.Equal(t, int32(1), catalog.calls.Load())
}

func TestDecomposer_NilLLMDisablesFallback(t *testing.T) {
	catalog := &stubCatalog{names: []string{"PMEGP"}}
	d := retrieval.NewDecomposer(catalog, nil, testLogger())

	result := d.Decompose(context.Background(), "credit support for brick kilns")

	assert.Equal(t, domain.ModeOpen, result.Mode)
}
