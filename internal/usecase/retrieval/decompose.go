package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"yojana-orchestrator/internal/domain"
)

const (
	// variationsTTL bounds how long the derived alias table is reused
	// before the scheme catalog is consulted again.
	variationsTTL = 10 * time.Minute

	// schemeExtractionTimeout bounds the LLM fallback call.
	schemeExtractionTimeout = 10 * time.Second

	// schemeExtractionMaxNames caps how many candidate names the fallback
	// prompt lists.
	schemeExtractionMaxNames = 50

	// schemeExtractionNone is the sentinel the fallback prompt asks for
	// when no scheme is mentioned.
	schemeExtractionNone = "NONE"
)

// SchemeVariant is one matchable alias of a canonical scheme name, with its
// compiled whole-word pattern.
type SchemeVariant struct {
	Canonical string
	Alias     string
	pattern   *regexp.Regexp
}

// BuildVariations derives the matchable aliases for each canonical name:
// the name itself, the name with special characters stripped, and, for
// names of more than two words, an acronym of the capitalized words when it
// reaches three letters. Aliases are deduplicated with the first catalog
// entry winning, so matching order follows catalog order.
func BuildVariations(names []string) []SchemeVariant {
	seen := make(map[string]bool)
	var variants []SchemeVariant

	add := func(canonical, alias string) {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			return
		}
		key := strings.ToLower(alias)
		if seen[key] {
			return
		}
		seen[key] = true
		variants = append(variants, SchemeVariant{
			Canonical: canonical,
			Alias:     alias,
			pattern:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(alias) + `\b`),
		})
	}

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		add(name, name)
		add(name, stripSpecialChars(name))
		if acronym := deriveAcronym(name); acronym != "" {
			add(name, acronym)
		}
	}
	return variants
}

// stripSpecialChars removes everything except letters, digits, underscores
// and whitespace, so "PM-KISAN" also matches as "PMKISAN".
func stripSpecialChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			return r
		}
		return -1
	}, s)
}

// deriveAcronym joins the first letters of capitalized words for names of
// more than two words, keeping only acronyms of at least three letters.
func deriveAcronym(name string) string {
	words := strings.Fields(name)
	if len(words) <= 2 {
		return ""
	}
	var b strings.Builder
	for _, w := range words {
		r := []rune(w)[0]
		if unicode.IsUpper(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() < 3 {
		return ""
	}
	return b.String()
}

// MatchSchemes is the pure fast path: it tests every variant's whole-word
// pattern against the query and collects canonical names in catalog order,
// deduplicated. Substring hits inside longer words never match.
func MatchSchemes(query string, variants []SchemeVariant) []string {
	var detected []string
	seen := make(map[string]bool)
	for _, v := range variants {
		if seen[v.Canonical] {
			continue
		}
		if v.pattern.MatchString(query) {
			seen[v.Canonical] = true
			detected = append(detected, v.Canonical)
		}
	}
	return detected
}

// Decomposer resolves queries to canonical scheme names: a pure alias-match
// fast path over the corpus catalog, then an optional LLM extraction
// fallback. It never returns an error; catalog or LLM failures degrade to
// an open-mode decomposition.
type Decomposer struct {
	catalog domain.SchemeCatalog
	llm     domain.LLMClient
	logger  *slog.Logger

	mu       sync.Mutex
	variants []SchemeVariant
	names    []string
	builtAt  time.Time
}

// NewDecomposer creates a Decomposer. A nil llm disables the extraction
// fallback; the fast path still runs.
func NewDecomposer(catalog domain.SchemeCatalog, llm domain.LLMClient, logger *slog.Logger) *Decomposer {
	return &Decomposer{catalog: catalog, llm: llm, logger: logger}
}

// Decompose analyzes the query for scheme mentions.
func (d *Decomposer) Decompose(ctx context.Context, query string) domain.Decomposition {
	query = strings.TrimSpace(query)

	variants, names, err := d.variations(ctx)
	if err != nil {
		d.logger.Warn("scheme_catalog_load_failed", slog.String("error", err.Error()))
		return domain.NewDecomposition(query, nil)
	}

	detected := MatchSchemes(query, variants)
	if len(detected) == 0 && d.llm != nil {
		detected = d.extractWithLLM(ctx, query, names)
	}

	if len(detected) > 0 {
		d.logger.Info("schemes_detected",
			slog.Any("schemes", detected),
			slog.String("query", query))
	}
	return domain.NewDecomposition(query, detected)
}

// variations returns the cached alias table, refreshing it from the catalog
// when stale. A failed refresh keeps serving the previous table.
func (d *Decomposer) variations(ctx context.Context) ([]SchemeVariant, []string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.variants != nil && time.Since(d.builtAt) < variationsTTL {
		return d.variants, d.names, nil
	}

	names, err := d.catalog.SchemeNames(ctx)
	if err != nil {
		if d.variants != nil {
			d.logger.Warn("scheme_catalog_refresh_failed", slog.String("error", err.Error()))
			return d.variants, d.names, nil
		}
		return nil, nil, domain.NewUpstreamError("scheme_catalog", err)
	}

	d.variants = BuildVariations(names)
	d.names = names
	d.builtAt = time.Now()
	d.logger.Info("scheme_variations_built",
		slog.Int("scheme_count", len(names)),
		slog.Int("variant_count", len(d.variants)))
	return d.variants, d.names, nil
}

// extractWithLLM asks the model which catalog schemes the query references.
// Replies are validated against the catalog; anything unparseable or any
// call failure yields no detections.
func (d *Decomposer) extractWithLLM(parent context.Context, query string, names []string) []string {
	ctx, cancel := context.WithTimeout(parent, schemeExtractionTimeout)
	defer cancel()

	candidates := names
	if len(candidates) > schemeExtractionMaxNames {
		candidates = candidates[:schemeExtractionMaxNames]
	}

	prompt := buildExtractionPrompt(query, candidates)
	resp, err := d.llm.Generate(ctx,
		[]domain.Message{{Role: domain.RoleUser, Content: prompt}},
		domain.GenerateOptions{MaxTokens: 100})
	if err != nil {
		d.logger.Warn("scheme_extraction_failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return nil
	}

	detected := parseSchemeReply(resp.Text, names)
	if len(detected) > 0 {
		d.logger.Info("schemes_detected_via_llm",
			slog.Any("schemes", detected),
			slog.String("query", query))
	}
	return detected
}

func buildExtractionPrompt(query string, names []string) string {
	var b strings.Builder
	b.WriteString("You are helping identify Indian government scheme names in user queries.\n\n")
	b.WriteString("Known schemes:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	fmt.Fprintf(&b, "\nUser query: %q\n\n", query)
	fmt.Fprintf(&b, "Which schemes from the list does the query reference? Reply with the exact scheme names separated by commas, or %s if no specific scheme is mentioned.", schemeExtractionNone)
	return b.String()
}

// parseSchemeReply splits a comma-separated reply and keeps only names that
// exist in the catalog, deduplicated, in reply order.
func parseSchemeReply(reply string, names []string) []string {
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, schemeExtractionNone) {
		return nil
	}

	canonical := make(map[string]string, len(names))
	for _, name := range names {
		canonical[strings.ToLower(name)] = name
	}

	var detected []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(reply, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		name, ok := canonical[strings.ToLower(part)]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		detected = append(detected, name)
	}
	return detected
}
