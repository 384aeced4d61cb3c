package types

import "errors"

var (
	ErrInvalidChunkID = errors.New("search result: invalid chunk id")
	ErrInvalidRank    = errors.New("search result: rank must be >= 1")
	ErrEmptyContent   = errors.New("search result: content cannot be empty")
)

// SearchResult is one row of a search response: a chunk plus the scoring
// detail that placed it at Rank.
type SearchResult struct {
	ChunkID    int64
	Source     string
	ChunkIndex int64 // position of the chunk within its source
	Rank       int   // position in the returned result set (1-based)

	Content  string
	Metadata map[string]string

	// BM25Rank and VecRank are the 1-based ranks this chunk held within the
	// individual BM25/vector candidate lists, when the search mode computed
	// them. Zero means "not present in that list".
	BM25Rank int
	VecRank  int

	// RRFScore is the fused Reciprocal Rank Fusion score, set by hybrid and
	// hybrid_reranked modes.
	RRFScore float64

	// RerankScore is the cross-encoder-style reranker score, set only by
	// hybrid_reranked.
	RerankScore float64
	Reranked    bool
}

// Validate checks that the search result is well formed.
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == 0 {
		return ErrInvalidChunkID
	}
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.Content == "" {
		return ErrEmptyContent
	}
	return nil
}
