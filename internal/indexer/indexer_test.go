package indexer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsearch/fastsearch/internal/embedder"
	"github.com/fastsearch/fastsearch/internal/store"
)

func setupIndexer(t *testing.T) (*Indexer, store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", embedder.LocalDimension)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	emb, err := embedder.New(embedder.Config{Provider: embedder.ProviderLocal})
	require.NoError(t, err)

	return New(st, emb, Config{Workers: 2}), st
}

func TestIndexSource_PlainText(t *testing.T) {
	idx, st := setupIndexer(t)
	ctx := context.Background()

	stats, err := idx.IndexSource(ctx, "notes.txt", "first paragraph.\n\nsecond paragraph.")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SourcesIndexed)
	assert.Equal(t, 1, stats.ChunksCreated)

	s, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.ChunkCount)
}

func TestIndexSource_MarkdownTagsSection(t *testing.T) {
	idx, st := setupIndexer(t)
	ctx := context.Background()

	content := "# Intro\n\nhello world.\n\n## Details\n\nmore detail here."
	stats, err := idx.IndexSource(ctx, "doc.md", content)
	require.NoError(t, err)
	require.Greater(t, stats.ChunksCreated, 0)

	results, err := st.SearchBM25(ctx, "detail", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	chunks, err := st.GetChunks(ctx, []int64{results[0].ChunkID})
	require.NoError(t, err)
	assert.Equal(t, "Details", chunks[results[0].ChunkID].Metadata["section"])
}

func TestIndexSource_ChunksCarryEstimatedTokenCount(t *testing.T) {
	idx, st := setupIndexer(t)
	ctx := context.Background()

	stats, err := idx.IndexSource(ctx, "notes.txt", "a short paragraph of plain text.")
	require.NoError(t, err)
	require.Equal(t, 1, stats.ChunksCreated)

	results, err := st.SearchBM25(ctx, "paragraph", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	chunks, err := st.GetChunks(ctx, []int64{results[0].ChunkID})
	require.NoError(t, err)
	assert.NotEmpty(t, chunks[results[0].ChunkID].Metadata["est_tokens"])
}

func TestIndexSource_EmptyContentYieldsNoChunks(t *testing.T) {
	idx, _ := setupIndexer(t)
	stats, err := idx.IndexSource(context.Background(), "empty.txt", "\n\n\n")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ChunksCreated)
}

func TestIndexSource_ReindexReplacesPreviousChunks(t *testing.T) {
	idx, st := setupIndexer(t)
	ctx := context.Background()

	_, err := idx.IndexSource(ctx, "a.txt", "one.\n\ntwo.\n\nthree.")
	require.NoError(t, err)
	_, err = idx.IndexSource(ctx, "a.txt", "only one paragraph now.")
	require.NoError(t, err)

	s, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.ChunkCount)
}

func TestIndexSource_ConcurrentCallsOnSameSourceBusy(t *testing.T) {
	idx, _ := setupIndexer(t)
	lock := idx.lockFor("same.txt")
	require.True(t, lock.TryAcquire())
	defer lock.Release()

	_, err := idx.IndexSource(context.Background(), "same.txt", "content")
	assert.ErrorIs(t, err, ErrSourceBusy)
}

func TestIndexSources_IndexesEachSourceIndependently(t *testing.T) {
	idx, st := setupIndexer(t)
	ctx := context.Background()

	stats, err := idx.IndexSources(ctx, []Source{
		{Name: "a.txt", Content: "alpha content here."},
		{Name: "b.txt", Content: "beta content here."},
		{Name: "c.txt", Content: "gamma content here."},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.SourcesIndexed)
	assert.Equal(t, 0, stats.SourcesFailed)

	s, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.SourceCount)
}

func TestSourceLock_ConcurrentAcquisition(t *testing.T) {
	var lock sourceLock
	const n = 100
	acquired := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			acquired[i] = lock.TryAcquire()
		}(i)
	}
	wg.Wait()

	count := 0
	for _, a := range acquired {
		if a {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one goroutine should acquire the lock")
}

func TestSourceLock_ReleaseAllowsReacquisition(t *testing.T) {
	var lock sourceLock
	require.True(t, lock.TryAcquire())
	assert.False(t, lock.TryAcquire())
	lock.Release()
	assert.True(t, lock.TryAcquire())
}
