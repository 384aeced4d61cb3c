package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalReranker_ScoresOverlapHigher(t *testing.T) {
	r := NewLocalReranker()
	scores, err := r.ScorePairs(context.Background(), "fast search engine", []string{
		"a slow turtle crawling",
		"building a fast search engine in go",
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Greater(t, scores[1], scores[0])
}

func TestLocalReranker_EmptyQuery(t *testing.T) {
	r := NewLocalReranker()
	_, err := r.ScorePairs(context.Background(), "", []string{"doc"})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestLocalReranker_EmptyDocs(t *testing.T) {
	r := NewLocalReranker()
	scores, err := r.ScorePairs(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestRerankWithIndices_SortsDescendingAndTruncates(t *testing.T) {
	r := NewLocalReranker()
	docs := []string{"turtle", "fast search engine", "search"}
	scored, err := RerankWithIndices(context.Background(), r, "fast search engine", docs, 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, 1, scored[0].Index)
	assert.GreaterOrEqual(t, scored[0].Score, scored[1].Score)
}
