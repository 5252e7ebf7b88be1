package domain_test

import (
	"testing"

	"yojana-orchestrator/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  domain.Intent
	}{
		{name: "exact label", label: "ELIGIBILITY", want: domain.IntentEligibility},
		{name: "lowercase label", label: "discovery", want: domain.IntentDiscovery},
		{name: "label with whitespace", label: "  COMPARISON \n", want: domain.IntentComparison},
		{name: "mixed case", label: "Benefits", want: domain.IntentBenefits},
		{name: "procedure", label: "PROCEDURE", want: domain.IntentProcedure},
		{name: "unknown label falls back to general", label: "CHITCHAT", want: domain.IntentGeneral},
		{name: "empty label falls back to general", label: "", want: domain.IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.ParseIntent(tt.label))
		})
	}
}

func TestScoredDocument_Sources(t *testing.T) {
	doc := domain.ScoredDocument{Lexical: true, Semantic: true}
	assert.Equal(t, []domain.RetrievalSource{domain.SourceLexical, domain.SourceSemantic}, doc.Sources())

	semanticOnly := domain.ScoredDocument{Semantic: true}
	assert.Equal(t, []domain.RetrievalSource{domain.SourceSemantic}, semanticOnly.Sources())

	assert.Empty(t, domain.ScoredDocument{}.Sources())
}

func TestSchemeDocument_SearchableText(t *testing.T) {
	doc := domain.SchemeDocument{
		SchemeName: "PM-KISAN",
		Theme:      "benefits",
		Text:       "Six thousand rupees per year.",
	}
	assert.Equal(t, "PM-KISAN benefits Six thousand rupees per year.", doc.SearchableText())
}
