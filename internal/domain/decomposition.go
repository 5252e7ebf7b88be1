package domain

// RetrievalMode selects the retrieval path for a query.
type RetrievalMode string

const (
	// ModeFiltered retrieves within the subset matching detected scheme names.
	ModeFiltered RetrievalMode = "filtered"
	// ModeOpen retrieves over the whole corpus with hybrid fusion.
	ModeOpen RetrievalMode = "open"
)

// Decomposition is the result of analyzing a query for scheme mentions.
// DetectedSchemes holds canonical names in order of first appearance,
// deduplicated. Mode is ModeFiltered exactly when at least one scheme
// was detected.
type Decomposition struct {
	OriginalQuery   string
	DetectedSchemes []string
	Mode            RetrievalMode
}

// NewDecomposition builds a Decomposition, deriving Mode from the detections.
func NewDecomposition(query string, schemes []string) Decomposition {
	mode := ModeOpen
	if len(schemes) > 0 {
		mode = ModeFiltered
	}
	return Decomposition{
		OriginalQuery:   query,
		DetectedSchemes: schemes,
		Mode:            mode,
	}
}
