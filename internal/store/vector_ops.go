package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fastsearch/fastsearch/internal/fserr"
)

// serializeVector encodes a float32 vector as a little-endian byte blob.
func serializeVector(v []float32) ([]byte, error) {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf, nil
}

// deserializeVector decodes a little-endian byte blob into a float32 vector.
func deserializeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("store: vector blob length %d not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// cosineSimilarity returns the cosine similarity of a and b, 0 if either
// vector has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate pairs a chunk id with a similarity score for sorting.
type candidate struct {
	id    int64
	score float64
}

// sortCandidates sorts by score descending (best similarity first).
func sortCandidates(c []candidate) {
	sort.Slice(c, func(i, j int) bool { return c[i].score > c[j].score })
}

func (s *sqliteStore) SearchVector(ctx context.Context, queryVec []float32, limit int) ([]VectorResult, error) {
	if len(queryVec) != s.dimension {
		return nil, fserr.Newf(fserr.DimensionMismatch, "store: query vector has %d dims, store expects %d", len(queryVec), s.dimension)
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunks_vec`)
	if err != nil {
		return nil, fmt.Errorf("store: scan vectors: %w", err)
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("store: scan vector row: %w", err)
		}
		vec, err := deserializeVector(blob)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{id: id, score: cosineSimilarity(queryVec, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate vectors: %w", err)
	}

	sortCandidates(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]VectorResult, len(candidates))
	for i, c := range candidates {
		results[i] = VectorResult{ChunkID: c.id, Distance: 1 - c.score}
	}
	return results, nil
}

func (s *sqliteStore) SearchBM25(ctx context.Context, query string, limit int) ([]TextResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT f.rowid, bm25(chunks_fts) as score
		 FROM chunks_fts f
		 WHERE chunks_fts MATCH ?
		 ORDER BY score
		 LIMIT ?`,
		sanitized, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: bm25 search: %w", err)
	}
	defer rows.Close()

	var results []TextResult
	for rows.Next() {
		var r TextResult
		if err := rows.Scan(&r.ChunkID, &r.Score); err != nil {
			return nil, fmt.Errorf("store: scan bm25 row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// sanitizeFTSQuery prepares a raw user query for FTS5 MATCH.
//
// If the query contains none of the FTS5 special characters anywhere
// unquoted, it is passed through unchanged. Otherwise each whitespace-
// separated token that contains a special character is individually
// wrapped in double quotes, with any embedded double quote doubled, and
// the tokens are rejoined with single spaces. An empty or all-whitespace
// query sanitizes to the empty string, which callers treat as zero
// results rather than an error.
func sanitizeFTSQuery(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !containsFTSSpecial(trimmed) {
		return trimmed
	}

	tokens := strings.Fields(trimmed)
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		if containsFTSSpecial(tok) {
			escaped := strings.ReplaceAll(tok, `"`, `""`)
			out[i] = `"` + escaped + `"`
		} else {
			out[i] = tok
		}
	}
	return strings.Join(out, " ")
}

const ftsSpecialChars = `"-:()*`

func containsFTSSpecial(s string) bool {
	return strings.ContainsAny(s, ftsSpecialChars)
}
