package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsearch/fastsearch/internal/embedder"
	"github.com/fastsearch/fastsearch/internal/reranker"
	"github.com/fastsearch/fastsearch/internal/store"
)

func setupEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	s, err := store.Open(":memory:", embedder.LocalDimension)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	e := New(s, emb, reranker.NewLocalReranker())
	return e, s
}

func insertDoc(t *testing.T, ctx context.Context, s store.Store, emb embedder.Embedder, source, content string) int64 {
	t.Helper()
	vecs, err := emb.EmbedBatch(ctx, []string{content})
	require.NoError(t, err)
	id, err := s.Insert(ctx, store.InsertItem{Source: source, Content: content, Embedding: vecs[0]})
	require.NoError(t, err)
	return id
}

func TestSearch_EmptyQuery(t *testing.T) {
	e, _ := setupEngine(t)
	_, err := e.Search(context.Background(), Request{Query: "  ", Mode: ModeBM25})
	require.Error(t, err)
}

func TestSearch_BM25FindsMatch(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	insertDoc(t, ctx, s, emb, "a.md", "the quick brown fox jumps")
	insertDoc(t, ctx, s, emb, "b.md", "a slow green turtle")

	resp, err := e.Search(ctx, Request{Query: "fox", Mode: ModeBM25, Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Results[0].Rank)
}

func TestSearch_VectorMode(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	insertDoc(t, ctx, s, emb, "a.md", "paragraph based chunking")
	insertDoc(t, ctx, s, emb, "b.md", "unrelated financial report")

	resp, err := e.Search(ctx, Request{Query: "paragraph based chunking", Mode: ModeVector, Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
}

func TestSearch_HybridFusesBothLists(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	insertDoc(t, ctx, s, emb, "a.md", "hybrid search fuses bm25 and vector ranks")
	insertDoc(t, ctx, s, emb, "b.md", "completely unrelated content about cooking")

	resp, err := e.Search(ctx, Request{Query: "hybrid search fuses", Mode: ModeHybrid, Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Greater(t, resp.Results[0].RRFScore, 0.0)
}

func TestSearch_HybridRerankedWithoutRerankerFails(t *testing.T) {
	s, err := store.Open(":memory:", embedder.LocalDimension)
	require.NoError(t, err)
	defer s.Close()
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	e := New(s, emb, nil)
	insertDoc(t, context.Background(), s, emb, "a.md", "content")

	_, err = e.Search(context.Background(), Request{Query: "content", Mode: ModeHybridReranked, Limit: 5})
	require.Error(t, err)
}

func TestSearch_HybridReranked_OrdersByRerankScore(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	insertDoc(t, ctx, s, emb, "a.md", "turtle crawling slowly in a garden")
	insertDoc(t, ctx, s, emb, "b.md", "fast search engine built in go")

	resp, err := e.Search(ctx, Request{Query: "fast search engine", Mode: ModeHybridReranked, Limit: 2, RerankTopK: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Reranked)
	assert.GreaterOrEqual(t, resp.Results[0].RerankScore, resp.Results[1].RerankScore)
}

// countingReranker records how many documents it was asked to score, so
// tests can assert the engine trims candidates before reranking rather
// than relying on score values.
type countingReranker struct {
	reranker.Reranker
	lastDocCount int
}

func (c *countingReranker) ScorePairs(ctx context.Context, query string, docs []string) ([]float64, error) {
	c.lastDocCount = len(docs)
	return c.Reranker.ScorePairs(ctx, query, docs)
}

func TestSearch_HybridReranked_ScoresOnlyRerankTopK(t *testing.T) {
	s, err := store.Open(":memory:", embedder.LocalDimension)
	require.NoError(t, err)
	defer s.Close()
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	rr := &countingReranker{Reranker: reranker.NewLocalReranker()}
	e := New(s, emb, rr)

	for i := 0; i < 5; i++ {
		insertDoc(t, context.Background(), s, emb, "doc.md", "fast search engine built in go number")
	}

	resp, err := e.Search(context.Background(), Request{Query: "fast search engine", Mode: ModeHybridReranked, Limit: 5, RerankTopK: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, rr.lastDocCount, "reranker should only score rerank_top_k candidates, not the whole candidate pool")
	assert.LessOrEqual(t, len(resp.Results), 2)
}

func TestSearch_ResultsCarryChunkIndex(t *testing.T) {
	e, s := setupEngine(t)
	ctx := context.Background()
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	vecs, err := emb.EmbedBatch(ctx, []string{"second chunk of the document"})
	require.NoError(t, err)
	_, err = s.InsertBatch(ctx, []store.InsertItem{
		{Source: "doc.md", ChunkIndex: 3, Content: "second chunk of the document", Embedding: vecs[0]},
	})
	require.NoError(t, err)

	resp, err := e.Search(ctx, Request{Query: "second chunk", Mode: ModeBM25, Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, int64(3), resp.Results[0].ChunkIndex)
}

func TestFuseRRF_TieBreaksByRankSumThenID(t *testing.T) {
	bm25 := []store.TextResult{{ChunkID: 5, Score: -1}, {ChunkID: 3, Score: -2}}
	vec := []store.VectorResult{{ChunkID: 3, Distance: 0.1}, {ChunkID: 5, Distance: 0.2}}

	fused := fuseRRF(bm25, vec, 60)
	require.Len(t, fused, 2)
	// Both have rrf = 1/(60+1) + 1/(60+2), identical scores and rank sums;
	// lower id must win the tie.
	assert.Equal(t, int64(3), fused[0].id)
}

func TestFetchLimit(t *testing.T) {
	assert.Equal(t, 20, fetchLimit(1))
	assert.Equal(t, 20, fetchLimit(5))
	assert.Equal(t, 40, fetchLimit(10))
}
