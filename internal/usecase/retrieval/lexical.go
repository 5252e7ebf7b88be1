package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"yojana-orchestrator/internal/domain"
)

// LexicalConfig holds BM25 parameters.
type LexicalConfig struct {
	// K1 controls term-frequency saturation.
	K1 float64
	// B controls document-length normalization.
	B float64
}

// DefaultLexicalConfig returns the standard BM25 parameters.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{K1: 1.5, B: 0.75}
}

// Validate checks parameter sanity.
func (c LexicalConfig) Validate() error {
	if c.K1 <= 0 {
		return fmt.Errorf("lexical k1 must be positive, got %f", c.K1)
	}
	if c.B < 0 || c.B > 1 {
		return fmt.Errorf("lexical b must be in [0, 1], got %f", c.B)
	}
	return nil
}

// LexicalHit is a ranked BM25 result. Rank is the 1-based position within
// the ranking, used for RRF fusion.
type LexicalHit struct {
	Document domain.SchemeDocument
	Score    float64
	Rank     int
}

// LexicalIndex is an in-process BM25 index over the scheme corpus. It is
// built at most once per corpus version: the version is the corpus document
// count, and Ensure rebuilds only when the count changes.
//
// Build policy: builders serialize on a mutex and callers arriving during a
// build block until it finishes, then use the fresh index. Readers take no
// lock once a state is published; a published state is immutable.
type LexicalIndex struct {
	cfg    LexicalConfig
	logger *slog.Logger

	buildMu sync.Mutex
	state   atomic.Pointer[lexicalState]
}

type lexicalState struct {
	version int
	docs    []indexedDocument
	byID    map[string]int
	df      map[string]int
	avgLen  float64
}

type indexedDocument struct {
	doc    domain.SchemeDocument
	tf     map[string]int
	length int
}

// NewLexicalIndex creates an empty index. The first Ensure call builds it.
func NewLexicalIndex(cfg LexicalConfig, logger *slog.Logger) *LexicalIndex {
	return &LexicalIndex{cfg: cfg, logger: logger}
}

// Tokenize lowercases text and splits it on non-alphanumeric runs, dropping
// empties. Devanagari counts as letters, so Hindi scheme text tokenizes too.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Ensure builds the index when absent or when the corpus document count no
// longer matches the built version. An empty corpus builds an index that
// scores everything 0.0, not an error.
func (x *LexicalIndex) Ensure(ctx context.Context, corpus domain.VectorIndex) error {
	count, err := corpus.Count(ctx)
	if err != nil {
		return domain.NewUpstreamError("corpus_count", err)
	}
	if s := x.state.Load(); s != nil && s.version == count {
		return nil
	}

	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	// Another caller may have finished the build while this one waited.
	if s := x.state.Load(); s != nil && s.version == count {
		return nil
	}

	start := time.Now()
	docs, err := corpus.Scroll(ctx, domain.SearchFilter{})
	if err != nil {
		return domain.NewUpstreamError("corpus_scroll", err)
	}
	x.state.Store(buildLexicalState(docs, count))
	x.logger.Info("lexical_index_built",
		slog.Int("document_count", len(docs)),
		slog.Int("corpus_version", count),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

func buildLexicalState(docs []domain.SchemeDocument, version int) *lexicalState {
	state := &lexicalState{
		version: version,
		docs:    make([]indexedDocument, 0, len(docs)),
		byID:    make(map[string]int, len(docs)),
		df:      make(map[string]int),
	}
	totalLen := 0
	for _, doc := range docs {
		tokens := Tokenize(doc.SearchableText())
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			state.df[tok]++
		}
		state.byID[doc.ID] = len(state.docs)
		state.docs = append(state.docs, indexedDocument{doc: doc, tf: tf, length: len(tokens)})
		totalLen += len(tokens)
	}
	if len(state.docs) > 0 {
		state.avgLen = float64(totalLen) / float64(len(state.docs))
	}
	return state
}

// Score returns a BM25 score per candidate ID. Zero-overlap documents and
// IDs unknown to the index score 0.0; an unbuilt index scores everything
// 0.0. Never an error.
func (x *LexicalIndex) Score(query string, candidateIDs []string) map[string]float64 {
	out := make(map[string]float64, len(candidateIDs))
	state := x.state.Load()
	queryTokens := Tokenize(query)
	for _, id := range candidateIDs {
		out[id] = 0
		if state == nil {
			continue
		}
		if pos, ok := state.byID[id]; ok {
			d := state.docs[pos]
			out[id] = x.bm25(state, queryTokens, d.tf, d.length)
		}
	}
	return out
}

// ScoreAll ranks the whole corpus against the query, best first. Documents
// with no term overlap are omitted; limit <= 0 means no truncation.
func (x *LexicalIndex) ScoreAll(query string, limit int) []LexicalHit {
	state := x.state.Load()
	if state == nil || len(state.docs) == 0 {
		return nil
	}
	queryTokens := Tokenize(query)

	var hits []LexicalHit
	for _, d := range state.docs {
		score := x.bm25(state, queryTokens, d.tf, d.length)
		if score > 0 {
			hits = append(hits, LexicalHit{Document: d.doc, Score: score})
		}
	}
	return rankHits(hits, limit)
}

// ScoreSubset ranks the given documents against the query using corpus-level
// statistics, best first, omitting zero scores. Documents absent from the
// index (for example scrolled after an ingest) are tokenized on the fly.
func (x *LexicalIndex) ScoreSubset(query string, docs []domain.SchemeDocument) []LexicalHit {
	state := x.state.Load()
	if state == nil {
		return nil
	}
	queryTokens := Tokenize(query)

	var hits []LexicalHit
	for _, doc := range docs {
		var tf map[string]int
		var length int
		if pos, ok := state.byID[doc.ID]; ok {
			tf, length = state.docs[pos].tf, state.docs[pos].length
		} else {
			tokens := Tokenize(doc.SearchableText())
			tf = make(map[string]int, len(tokens))
			for _, tok := range tokens {
				tf[tok]++
			}
			length = len(tokens)
		}
		score := x.bm25(state, queryTokens, tf, length)
		if score > 0 {
			hits = append(hits, LexicalHit{Document: doc, Score: score})
		}
	}
	return rankHits(hits, 0)
}

// bm25 computes the Okapi score of one document against the query tokens,
// with the non-negative log(1 + ...) IDF variant.
func (x *LexicalIndex) bm25(state *lexicalState, queryTokens []string, tf map[string]int, docLen int) float64 {
	if docLen == 0 || len(queryTokens) == 0 || len(state.docs) == 0 {
		return 0
	}
	n := float64(len(state.docs))
	var score float64
	for _, tok := range queryTokens {
		f := float64(tf[tok])
		if f == 0 {
			continue
		}
		df := float64(state.df[tok])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		denom := f + x.cfg.K1*(1-x.cfg.B+x.cfg.B*float64(docLen)/state.avgLen)
		score += idf * (f * (x.cfg.K1 + 1)) / denom
	}
	return score
}

// rankHits sorts best first with ties broken by document ID, truncates to
// limit when positive, and assigns 1-based ranks.
func rankHits(hits []LexicalHit, limit int) []LexicalHit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Document.ID < hits[j].Document.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits
}
