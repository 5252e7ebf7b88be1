package usecase_test

import (
	"strings"
	"testing"

	"yojana-orchestrator/internal/domain"
	"yojana-orchestrator/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXMLPromptBuilder_Answer_Success(t *testing.T) {
	builder := usecase.NewXMLPromptBuilder()

	messages, err := builder.Answer(usecase.AnswerPromptInput{
		Query:  "What subsidy does PMEGP give for R&D units?",
		Intent: domain.IntentBenefits,
		Contexts: []usecase.PromptContext{
			{
				SchemeName: "PMEGP",
				Theme:      "benefits",
				Ministry:   "Ministry of MSME",
				URL:        "https://www.kviconline.gov.in/pmegp",
				Score:      0.91234,
				Text:       "Margin money subsidy of 15% to 35% of the project cost.",
			},
			{
				SchemeName: "PM SVANidhi",
				Theme:      "benefits",
				Score:      0.655,
				Text:       "Working capital loan up to Rs 10,000.",
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, domain.RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "<instructions>")
	assert.Contains(t, messages[0].Content, "government schemes expert")
	assert.Contains(t, messages[0].Content, "<format>")

	assert.Equal(t, domain.RoleUser, messages[1].Role)
	assert.Contains(t, messages[1].Content, `<context intent="BENEFITS">`)
	assert.Contains(t, messages[1].Content, "<scheme_name>PMEGP</scheme_name>")
	assert.Contains(t, messages[1].Content, "<ministry>Ministry of MSME</ministry>")
	assert.Contains(t, messages[1].Content, "<relevance>0.912</relevance>")
	assert.Contains(t, messages[1].Content, "<scheme_name>PM SVANidhi</scheme_name>")
	// The second context has no ministry or URL, so those tags are omitted.
	assert.Equal(t, 1, strings.Count(messages[1].Content, "<ministry>"))
	assert.Equal(t, 1, strings.Count(messages[1].Content, "<official_url>"))
	// Raw text is escaped before it lands inside the markup.
	assert.Contains(t, messages[1].Content, "R&amp;D")
	assert.NotContains(t, messages[1].Content, "R&D units?</query>")
}

func TestXMLPromptBuilder_Answer_AdditionalInstructions(t *testing.T) {
	builder := usecase.NewXMLPromptBuilder("Reply in the same language as the query.")

	messages, err := builder.Answer(usecase.AnswerPromptInput{
		Query:  "PMEGP subsidy",
		Intent: domain.IntentBenefits,
		Contexts: []usecase.PromptContext{
			{SchemeName: "PMEGP", Theme: "benefits", Score: 0.9, Text: "Subsidy details."},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, messages[0].Content, "<line>Reply in the same language as the query.</line>")
}

func TestXMLPromptBuilder_Answer_Rejections(t *testing.T) {
	builder := usecase.NewXMLPromptBuilder()

	_, err := builder.Answer(usecase.AnswerPromptInput{
		Query: "   ",
		Contexts: []usecase.PromptContext{
			{SchemeName: "PMEGP", Theme: "benefits", Text: "text"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")

	_, err = builder.Answer(usecase.AnswerPromptInput{Query: "PMEGP subsidy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one context document is required")
}

func TestXMLPromptBuilder_RelevanceJudgment_FormatsPreviews(t *testing.T) {
	builder := usecase.NewXMLPromptBuilder()
	longText := strings.Repeat("x", 250)

	messages := builder.RelevanceJudgment("PMEGP subsidy", []domain.ScoredDocument{
		{
			Document: domain.SchemeDocument{SchemeName: "PMEGP", Theme: "benefits", Text: longText},
			Score:    0.87654,
		},
	})
	require.Len(t, messages, 2)

	assert.Contains(t, messages[0].Content, "Respond ONLY with YES or NO")
	assert.Contains(t, messages[1].Content, "Query: PMEGP subsidy")
	assert.Contains(t, messages[1].Content, "1. Scheme: PMEGP")
	assert.Contains(t, messages[1].Content, "Score: 0.877")
	// Previews are capped at 200 runes.
	assert.Contains(t, messages[1].Content, strings.Repeat("x", 200)+"...")
	assert.NotContains(t, messages[1].Content, strings.Repeat("x", 201))
}

func TestXMLPromptBuilder_RelevanceJudgment_EmptyDocs(t *testing.T) {
	builder := usecase.NewXMLPromptBuilder()

	messages := builder.RelevanceJudgment("anything", nil)
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].Content, "No documents retrieved.")
}

func TestXMLPromptBuilder_RewritePrompts(t *testing.T) {
	builder := usecase.NewXMLPromptBuilder()

	refine := builder.QueryRefinement("pmegp money")
	require.Len(t, refine, 2)
	assert.Contains(t, refine[0].Content, "Return ONLY the rewritten query")
	assert.Equal(t, "Original Query: pmegp money", refine[1].Content)

	corrective := builder.CorrectiveQuery("pmegp money")
	require.Len(t, corrective, 2)
	assert.Contains(t, corrective[0].Content, "Return ONLY the improved query")
	assert.Equal(t, "Original Query: pmegp money", corrective[1].Content)

	quality := builder.AnswerQuality("pmegp money", "PMEGP gives a subsidy.")
	require.Len(t, quality, 2)
	assert.Contains(t, quality[0].Content, "Respond ONLY with YES or NO")
	assert.Contains(t, quality[1].Content, "Query: pmegp money")
	assert.Contains(t, quality[1].Content, "Answer: PMEGP gives a subsidy.")
}
