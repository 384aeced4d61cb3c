package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Local(t *testing.T) {
	e, err := New(Config{Provider: "local"})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, e.Provider())
}

func TestNew_DefaultsToLocal(t *testing.T) {
	e, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, e.Provider())
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}

func TestNew_JinaRequiresAPIKey(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	_, err := New(Config{Provider: "jina"})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestDetectProvider_DefaultsToLocal(t *testing.T) {
	t.Setenv("FASTSEARCH_EMBEDDING_PROVIDER", "")
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	assert.Equal(t, ProviderLocal, DetectProvider())
}

func TestDetectProvider_ExplicitEnvWins(t *testing.T) {
	t.Setenv("FASTSEARCH_EMBEDDING_PROVIDER", "openai")
	assert.Equal(t, ProviderOpenAI, DetectProvider())
}
