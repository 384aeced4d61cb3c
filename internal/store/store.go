package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist.
	ErrNotFound = errors.New("not found")
)

// Chunk is the primary retrieval unit persisted by the store.
type Chunk struct {
	ID         int64
	Source     string
	ChunkIndex int
	Content    string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// InsertItem is one chunk plus its embedding, as passed to Insert/InsertBatch.
type InsertItem struct {
	Source     string
	ChunkIndex int
	Content    string
	Embedding  []float32
	Metadata   map[string]string
}

// VectorResult is one hit from a vector k-NN search.
// Distance is non-negative cosine distance; lower is better.
type VectorResult struct {
	ChunkID  int64
	Distance float64
}

// TextResult is one hit from a BM25 full-text search.
// Score follows SQLite FTS5 convention: lower (more negative) is better.
type TextResult struct {
	ChunkID int64
	Score   float64
}

// SourceCount is one row of Stats' top_sources breakdown.
type SourceCount struct {
	Source string
	Chunks int
}

// Stats summarizes store contents.
type Stats struct {
	ChunkCount  int
	SourceCount int
	Bytes       int64
	TopSources  []SourceCount
}

// String renders a one-line human-readable summary, e.g. for a status
// command: "142 chunks across 9 sources, 3.1 MB".
func (s Stats) String() string {
	return fmt.Sprintf("%d chunks across %d sources, %s",
		s.ChunkCount, s.SourceCount, humanize.Bytes(uint64(s.Bytes)))
}

// Store is the persistence interface implemented by the SQLite backend.
// All write operations are transactional: either the whole batch lands in
// chunks, chunks_fts, and chunks_vec together, or none of it does.
type Store interface {
	// Insert writes one chunk atomically across all three tables.
	Insert(ctx context.Context, item InsertItem) (int64, error)

	// InsertBatch writes many chunks in a single transaction.
	InsertBatch(ctx context.Context, items []InsertItem) ([]int64, error)

	// DeleteSource removes every chunk whose source equals the given path,
	// or, if exact is false, whose source has the given string as a suffix.
	// Suffix matching that is ambiguous (matches more than one distinct
	// source) returns fserr.AmbiguousSource and deletes nothing.
	DeleteSource(ctx context.Context, sourceOrSuffix string, exact bool) (int, error)

	// ReindexSource atomically replaces all chunks for source with items in
	// one transaction: delete-then-insert, all-or-nothing.
	ReindexSource(ctx context.Context, source string, items []InsertItem) ([]int64, error)

	// SearchBM25 tokenizes and sanitizes query, runs a BM25 scan, and
	// returns up to limit results ordered best-first.
	SearchBM25(ctx context.Context, query string, limit int) ([]TextResult, error)

	// SearchVector returns up to limit nearest chunks to queryVec by cosine
	// distance, ascending (best first). len(queryVec) must equal the
	// store's dimension.
	SearchVector(ctx context.Context, queryVec []float32, limit int) ([]VectorResult, error)

	// GetChunks fetches chunk rows by id, in no particular order, skipping
	// any ids that do not exist.
	GetChunks(ctx context.Context, ids []int64) (map[int64]Chunk, error)

	// Stats reports aggregate counts and the top sources by chunk count.
	Stats(ctx context.Context) (Stats, error)

	// Dimension returns the embedding dimension this store was created
	// with.
	Dimension() int

	Close() error
}
