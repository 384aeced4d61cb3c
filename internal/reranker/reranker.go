// Package reranker implements the Reranker capability interface the model
// manager loads into named slots: scoring (query, document) pairs for
// hybrid_reranked search.
package reranker

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
)

// Common errors
var (
	ErrEmptyQuery       = errors.New("reranker: query cannot be empty")
	ErrUnsupportedModel = errors.New("reranker: unsupported model")
)

// Reranker is the capability interface the model manager loads into a
// named slot. Implementations cross-score a query against candidate
// documents; higher score means more relevant.
type Reranker interface {
	// ScorePairs returns one score per document, in the same order as docs.
	ScorePairs(ctx context.Context, query string, docs []string) ([]float64, error)

	// EstimatedMemoryMB is a static per-model memory estimate used by the
	// manager's budget accounting.
	EstimatedMemoryMB() int

	Provider() string
	Model() string

	Close() error
}

// Scored pairs an original candidate index with its reranker score.
type Scored struct {
	Index int
	Score float64
}

// RerankWithIndices scores every document then returns (index, score)
// pairs sorted by score descending, truncated to topK when topK > 0.
func RerankWithIndices(ctx context.Context, r Reranker, query string, docs []string, topK int) ([]Scored, error) {
	scores, err := r.ScorePairs(ctx, query, docs)
	if err != nil {
		return nil, err
	}
	out := make([]Scored, len(scores))
	for i, s := range scores {
		out[i] = Scored{Index: i, Score: s}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

const (
	ProviderLocal = "local"

	// localRerankerMemoryMB mirrors a small cross-encoder such as
	// ms-marco-MiniLM-L-6-v2; static estimate, not sampled.
	localRerankerMemoryMB = 120
)

// LocalReranker is a deterministic, weight-free stand-in for a cross-
// encoder such as cross-encoder/ms-marco-MiniLM-L-6-v2. It scores a
// (query, document) pair by normalized token overlap, which is enough to
// exercise the reranking pipeline and produce a stable order without any
// model weights to load.
type LocalReranker struct {
	model string
}

// NewLocalReranker creates a new local reranker.
func NewLocalReranker() *LocalReranker {
	return &LocalReranker{model: "cross-encoder/ms-marco-MiniLM-L-6-v2"}
}

func (r *LocalReranker) ScorePairs(ctx context.Context, query string, docs []string) ([]float64, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if len(docs) == 0 {
		return []float64{}, nil
	}
	queryTokens := tokenSet(query)
	scores := make([]float64, len(docs))
	for i, doc := range docs {
		scores[i] = overlapScore(queryTokens, tokenSet(doc))
	}
	return scores, nil
}

func (r *LocalReranker) EstimatedMemoryMB() int { return localRerankerMemoryMB }
func (r *LocalReranker) Provider() string       { return ProviderLocal }
func (r *LocalReranker) Model() string          { return r.model }
func (r *LocalReranker) Close() error           { return nil }

func tokenSet(s string) map[string]bool {
	tokens := map[string]bool{}
	word := make([]rune, 0, 16)
	flush := func() {
		if len(word) > 0 {
			tokens[string(word)] = true
			word = word[:0]
		}
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			word = append(word, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// overlapScore is a Jaccard-like overlap with a small deterministic
// tiebreaker derived from a content hash, so otherwise-equal documents
// still sort into a stable, reproducible order.
func overlapScore(query, doc map[string]bool) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	var shared int
	for tok := range query {
		if doc[tok] {
			shared++
		}
	}
	base := float64(shared) / float64(len(query))
	return base + tiebreak(doc)
}

func tiebreak(doc map[string]bool) float64 {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.Sum256([]byte(fmt.Sprint(keys)))
	return float64(h[0]) / 1e6
}
