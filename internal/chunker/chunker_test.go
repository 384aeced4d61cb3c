package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_SingleParagraph(t *testing.T) {
	chunks := ChunkText("just one short paragraph", 2000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just one short paragraph", chunks[0].Content)
}

func TestChunkText_NeverSplitsInsideAParagraph(t *testing.T) {
	text := "alpha paragraph one.\n\nbeta paragraph two.\n\ngamma paragraph three."
	chunks := ChunkText(text, 30, 5)
	for _, c := range chunks {
		assert.NotContains(t, c.Content, "\n\n\n")
	}
	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Content)
	}
	assert.Contains(t, joined.String(), "alpha paragraph one.")
	assert.Contains(t, joined.String(), "gamma paragraph three.")
}

func TestChunkText_CarriesOverlap(t *testing.T) {
	text := "first paragraph with enough content to matter here.\n\nsecond paragraph also has plenty of content in it."
	chunks := ChunkText(text, 40, 15)
	require.GreaterOrEqual(t, len(chunks), 2)
	tail := lastNChars(chunks[0].Content, 15)
	assert.True(t, strings.HasPrefix(chunks[1].Content, tail))
}

func TestChunkText_NeverEmitsEmptyChunk(t *testing.T) {
	chunks := ChunkText("\n\n\n\n", 100, 10)
	assert.Empty(t, chunks)
}

func TestChunkText_OversizedParagraphIsSentenceSplit(t *testing.T) {
	long := strings.Repeat("This is one sentence. ", 40)
	chunks := ChunkText(long, 100, 10)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 130)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two! Three?")
	assert.Equal(t, []string{"One.", "Two!", "Three?"}, got)
}

func TestChunkMarkdown_TagsSection(t *testing.T) {
	text := "# Intro\n\nSome intro text.\n\n## Details\n\nMore detailed text here."
	chunks := ChunkMarkdown(text, 2000, 200)
	require.NotEmpty(t, chunks)

	var sawIntro, sawDetails bool
	for _, c := range chunks {
		if c.Section == "Intro" {
			sawIntro = true
		}
		if c.Section == "Details" {
			sawDetails = true
		}
	}
	assert.True(t, sawIntro)
	assert.True(t, sawDetails)
}

func TestChunkMarkdown_PreambleHasEmptySection(t *testing.T) {
	text := "no heading yet\n\n# First Heading\n\nbody text"
	chunks := ChunkMarkdown(text, 2000, 200)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "", chunks[0].Section)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 5, EstimateTokens("twenty characters!!!"))
}

func TestEstimateTokensPrecise_FallsBackGracefully(t *testing.T) {
	// Must never panic even if the encoder cannot be loaded in this
	// environment (e.g. no network to fetch BPE ranks).
	n := EstimateTokensPrecise("hello world")
	assert.GreaterOrEqual(t, n, 0)
}
