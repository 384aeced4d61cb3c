package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProvider_EmbedBatch_Deterministic(t *testing.T) {
	p, err := NewLocalProvider(NewCache(10))
	require.NoError(t, err)

	ctx := context.Background()
	first, err := p.EmbedBatch(ctx, []string{"alpha beta"})
	require.NoError(t, err)
	second, err := p.EmbedBatch(ctx, []string{"alpha beta"})
	require.NoError(t, err)

	assert.Equal(t, first[0], second[0])
	assert.Len(t, first[0], LocalDimension)
	assert.Equal(t, LocalDimension, p.Dimension())
}

func TestLocalProvider_EmbedBatch_DistinctInputs(t *testing.T) {
	p, err := NewLocalProvider(nil)
	require.NoError(t, err)

	vecs, err := p.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestLocalProvider_EmbedBatch_RejectsEmptyBatch(t *testing.T) {
	p, err := NewLocalProvider(nil)
	require.NoError(t, err)

	_, err = p.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLocalProvider_EmbedBatch_RejectsEmptyText(t *testing.T) {
	p, err := NewLocalProvider(nil)
	require.NoError(t, err)

	_, err = p.EmbedBatch(context.Background(), []string{""})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCache_GetSetRoundTrip(t *testing.T) {
	c := NewCache(10)
	emb := &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3}
	c.Set("hash1", emb)

	got, ok := c.Get("hash1")
	require.True(t, ok)
	assert.Equal(t, emb.Vector, got.Vector)

	got.Vector[0] = 99
	again, _ := c.Get("hash1")
	assert.Equal(t, float32(1), again.Vector[0], "cache must return a copy, not the stored slice")
}

func TestComputeHash_Stable(t *testing.T) {
	assert.Equal(t, ComputeHash("hello"), ComputeHash("hello"))
	assert.NotEqual(t, ComputeHash("hello"), ComputeHash("world"))
}
