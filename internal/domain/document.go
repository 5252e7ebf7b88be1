package domain

// SchemeDocument is a retrievable unit of scheme knowledge: one indexed chunk
// of a government scheme page, carrying the metadata used for filtering.
type SchemeDocument struct {
	ID         string
	SchemeName string
	Theme      string
	Text       string
	Ministry   string
	URL        string
}

// SearchableText returns the text that lexical scoring runs over. Scheme name
// and theme are included so queries naming a scheme match even when the chunk
// body never repeats the name.
func (d SchemeDocument) SearchableText() string {
	return d.SchemeName + " " + d.Theme + " " + d.Text
}

// RetrievalSource identifies a ranking signal that contributed to a result.
type RetrievalSource string

const (
	SourceLexical  RetrievalSource = "lexical"
	SourceSemantic RetrievalSource = "semantic"
)

// ScoredDocument pairs a document with its relevance score and the signals
// that produced it. Scores from the semantic and fused paths live in [0, 1];
// raw lexical scores are unbounded.
type ScoredDocument struct {
	Document SchemeDocument
	Score    float64
	Lexical  bool
	Semantic bool
}

// Sources lists the contributing signals, lexical first.
func (d ScoredDocument) Sources() []RetrievalSource {
	var out []RetrievalSource
	if d.Lexical {
		out = append(out, SourceLexical)
	}
	if d.Semantic {
		out = append(out, SourceSemantic)
	}
	return out
}
