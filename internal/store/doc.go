// Package store provides the single-file SQLite-backed persistence layer
// for indexed text chunks.
//
// The store manages three logical tables kept in lockstep:
//   - chunks: the primary row per retrieval unit (source, chunk_index,
//     content, metadata, created_at)
//   - chunks_fts: an FTS5 projection of content supporting BM25 scoring
//   - chunks_vec: a fixed-dimension embedding per chunk supporting
//     k-nearest-neighbor by cosine distance
//
// # Basic Usage
//
//	s, err := store.Open("fastsearch.db", 768)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	id, err := s.Insert(ctx, store.InsertItem{
//	    Source:     "docs/intro.md",
//	    ChunkIndex: 0,
//	    Content:    "alpha beta gamma",
//	    Embedding:  vec,
//	})
//
// # Dimension Locking
//
// A store created with dimension D rejects any embedding of length != D,
// including on Open against a file previously created with a different D.
//
// # Build Tags
//
// CGO build (sqlite_vec tag): uses github.com/mattn/go-sqlite3.
// Pure Go build (default): uses modernc.org/sqlite. Vector similarity is
// computed in Go on both variants; see vector_ops.go.
package store
