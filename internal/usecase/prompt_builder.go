package usecase

import (
	"fmt"
	"strings"

	"yojana-orchestrator/internal/domain"
)

// judgePreviewRunes caps how much of a chunk the relevance judge sees. The
// judge only needs enough to tell on-topic from off-topic; full chunks blow
// the context budget at no accuracy gain.
const judgePreviewRunes = 200

// PromptContext transports one retrieved document into the generation prompt.
type PromptContext struct {
	SchemeName string
	Theme      string
	Ministry   string
	URL        string
	Score      float64
	Text       string
}

// AnswerPromptInput contains the pieces that feed the answer prompt.
type AnswerPromptInput struct {
	Query    string
	Intent   domain.Intent
	Contexts []PromptContext
}

// PromptBuilder renders the chat messages for every LLM call in the answer
// flow: generation plus the judge and rewrite prompts around it.
type PromptBuilder interface {
	Answer(input AnswerPromptInput) ([]domain.Message, error)
	RelevanceJudgment(query string, docs []domain.ScoredDocument) []domain.Message
	QueryRefinement(query string) []domain.Message
	AnswerQuality(query, answer string) []domain.Message
	CorrectiveQuery(query string) []domain.Message
}

// XMLPromptBuilder creates structured prompts that separate instructions,
// context and query, so scheme text can never be mistaken for instructions.
type XMLPromptBuilder struct {
	additionalInstructions []string
}

// NewXMLPromptBuilder creates a prompt builder with optional extra
// instructions appended to the answer prompt.
func NewXMLPromptBuilder(additionalInstructions ...string) PromptBuilder {
	return &XMLPromptBuilder{
		additionalInstructions: additionalInstructions,
	}
}

// Answer renders the generation messages. The model answers from the
// <context> schemes only and must reply in the JSON shape the <format>
// section fixes.
func (b *XMLPromptBuilder) Answer(input AnswerPromptInput) ([]domain.Message, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if len(input.Contexts) == 0 {
		return nil, fmt.Errorf("at least one context document is required")
	}

	var sysSb strings.Builder
	sysSb.WriteString("<instructions>\n")

	instructions := []string{
		"You are a government schemes expert for Indian citizens.",
		"Answer the user's question DIRECTLY and SPECIFICALLY using ONLY the schemes in the provided <context>.",
		"1. Start with a direct answer to the exact question asked. For yes/no questions, start with 'Yes' or 'No' clearly.",
		"2. Use concrete details from the context (amounts, percentages, eligibility criteria).",
		"3. Quote specific schemes by name and bold them using **Scheme Name**.",
		"4. Use bullet points for lists and include relevant official URLs for more information.",
		"5. Prioritize information from higher relevance score documents.",
		"6. If information is missing from the documents, state that clearly. Do NOT hallucinate or make assumptions.",
		"7. Set \"fallback\": true ONLY if the context contains nothing relevant to the question. If ANY relevant information exists, you MUST answer, even partially.",
		"8. The \"schemes\" array must list the exact scheme_name of every scheme your answer draws on.",
		"9. Keep answers concise but complete.",
		"10. Follow the JSON format specified below EXACTLY.",
	}

	for _, inst := range append(instructions, b.additionalInstructions...) {
		sysSb.WriteString("  <line>")
		sysSb.WriteString(escape(inst))
		sysSb.WriteString("</line>\n")
	}
	sysSb.WriteString("</instructions>\n\n")

	sysSb.WriteString("<format>\n")
	sysSb.WriteString("JSON: {\n")
	sysSb.WriteString("  \"answer\": \"Markdown text value...\",\n")
	sysSb.WriteString("  \"schemes\": [\"Scheme Name\"],\n")
	sysSb.WriteString("  \"fallback\": false,  // Set true ONLY if no relevant context exists\n")
	sysSb.WriteString("  \"reason\": \"\"  // Explain why fallback is true, if applicable\n")
	sysSb.WriteString("}\n")
	sysSb.WriteString("</format>\n")

	var userSb strings.Builder
	userSb.WriteString(fmt.Sprintf("<context intent=\"%s\">\n", escape(input.Intent.String())))
	for _, ctx := range input.Contexts {
		userSb.WriteString("  <scheme>\n")
		userSb.WriteString("    <scheme_name>")
		userSb.WriteString(escape(ctx.SchemeName))
		userSb.WriteString("</scheme_name>\n")
		userSb.WriteString("    <theme>")
		userSb.WriteString(escape(ctx.Theme))
		userSb.WriteString("</theme>\n")
		if ctx.Ministry != "" {
			userSb.WriteString("    <ministry>")
			userSb.WriteString(escape(ctx.Ministry))
			userSb.WriteString("</ministry>\n")
		}
		if ctx.URL != "" {
			userSb.WriteString("    <official_url>")
			userSb.WriteString(escape(ctx.URL))
			userSb.WriteString("</official_url>\n")
		}
		userSb.WriteString("    <relevance>")
		userSb.WriteString(fmt.Sprintf("%.3f", ctx.Score))
		userSb.WriteString("</relevance>\n")
		userSb.WriteString("    <text>")
		userSb.WriteString(escape(ctx.Text))
		userSb.WriteString("</text>\n")
		userSb.WriteString("  </scheme>\n")
	}
	userSb.WriteString("</context>\n\n")

	userSb.WriteString("<query>\n")
	userSb.WriteString(escape(input.Query))
	userSb.WriteString("\n</query>\n")

	return []domain.Message{
		{Role: domain.RoleSystem, Content: sysSb.String()},
		{Role: domain.RoleUser, Content: userSb.String()},
	}, nil
}

// RelevanceJudgment renders the YES/NO relevance check over document
// previews. YES means the retrieved schemes can answer the query.
func (b *XMLPromptBuilder) RelevanceJudgment(query string, docs []domain.ScoredDocument) []domain.Message {
	system := "You are a BALANCED relevance judge for government scheme retrieval.\n" +
		"Given a user query and retrieved schemes with their content previews and similarity scores, " +
		"judge if the schemes can answer the user's question.\n\n" +
		"Return YES (schemes are relevant) if:\n" +
		"- Schemes match the query topic\n" +
		"- Content preview shows information related to the question\n" +
		"- At least one scheme has a good similarity score (>0.5)\n" +
		"- Content is on-topic, even if not perfect\n\n" +
		"Return NO (needs better retrieval) if:\n" +
		"- Schemes are completely off-topic\n" +
		"- All similarity scores are very low (<0.4)\n" +
		"- No useful information is present in any document\n\n" +
		"Guidelines:\n" +
		"- Trust the retrieval system: if scores are >0.5, docs are likely relevant\n" +
		"- Don't demand perfection, docs just need to be helpful\n" +
		"- Consider that the full content (not shown) may have more details\n\n" +
		"Respond ONLY with YES or NO."

	return []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Query: %s\n\nRetrieved Schemes:\n%s", query, formatForJudge(docs))},
	}
}

// QueryRefinement renders the rewrite prompt used when retrieval came back
// off-topic.
func (b *XMLPromptBuilder) QueryRefinement(query string) []domain.Message {
	system := "You are a query refinement agent. The original query did not retrieve sufficiently " +
		"relevant government schemes. Rewrite the query to be more precise, specific, and " +
		"retrieval-friendly.\n\n" +
		"Techniques:\n" +
		"- Add specific keywords (eligibility, benefits, procedure, subsidy, etc.)\n" +
		"- Expand abbreviations (PMEGP -> Prime Minister Employment Generation Programme)\n" +
		"- Add context (manufacturing, women, youth, startup, MSME, etc.)\n" +
		"- Make implicit details explicit\n\n" +
		"Return ONLY the rewritten query, nothing else."

	return []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: "Original Query: " + query},
	}
}

// AnswerQuality renders the YES/NO adequacy check. YES means the answer is
// inadequate and needs a corrective round.
func (b *XMLPromptBuilder) AnswerQuality(query, answer string) []domain.Message {
	system := "You are a FAIR answer quality judge for government scheme queries.\n" +
		"Judge if the answer addresses the user's query adequately.\n\n" +
		"Return YES (answer is INADEQUATE and needs correction) if:\n" +
		"- Answer is completely off-topic or wrong\n" +
		"- Doesn't address the question at all\n" +
		"- Missing critical information that was clearly requested\n" +
		"- Says 'information not available' when it likely is\n\n" +
		"Return NO (answer is ADEQUATE) if:\n" +
		"- Directly answers the question asked\n" +
		"- Provides useful, relevant information\n" +
		"- May not be perfect but is helpful\n\n" +
		"Guidelines:\n" +
		"- Don't demand perfection, good enough is acceptable\n" +
		"- Only trigger correction for truly inadequate answers\n" +
		"- 'May be eligible' is acceptable when the documents are unclear\n\n" +
		"Examples:\n" +
		"Query: 'Can women apply for PMEGP?'\n" +
		"ADEQUATE (return NO): 'Yes, women can apply. The scheme is open to all individuals...'\n" +
		"INADEQUATE (return YES): 'PMEGP provides employment opportunities.'\n\n" +
		"Respond ONLY with YES or NO."

	return []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Query: %s\n\nAnswer: %s", query, answer)},
	}
}

// CorrectiveQuery renders the rewrite prompt used after an inadequate answer.
func (b *XMLPromptBuilder) CorrectiveQuery(query string) []domain.Message {
	system := "The answer to the user query was inadequate or incomplete. " +
		"Rewrite the query to retrieve better documents that can answer the question more directly.\n\n" +
		"Strategies:\n" +
		"- Add missing keywords from the original question\n" +
		"- Be more specific about what information is needed\n" +
		"- Focus on the exact aspect being asked (eligibility, benefits, procedure, etc.)\n" +
		"- Include synonyms or related terms\n\n" +
		"Return ONLY the improved query."

	return []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: "Original Query: " + query},
	}
}

// formatForJudge renders numbered previews: scheme name, theme, score and the
// first 200 runes of content.
func formatForJudge(docs []domain.ScoredDocument) string {
	if len(docs) == 0 {
		return "No documents retrieved."
	}

	var sb strings.Builder
	for i, d := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		preview := d.Document.Text
		if runes := []rune(preview); len(runes) > judgePreviewRunes {
			preview = string(runes[:judgePreviewRunes]) + "..."
		}
		sb.WriteString(fmt.Sprintf("%d. Scheme: %s\n   Theme: %s\n   Score: %.3f\n   Preview: %s",
			i+1, d.Document.SchemeName, d.Document.Theme, d.Score, preview))
	}
	return sb.String()
}

func escape(value string) string {
	s := strings.TrimSpace(value)
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(s)
}
