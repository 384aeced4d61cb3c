package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Config holds embedder provider configuration as read from the model
// manager's slot config.
type Config struct {
	Provider  string
	APIKey    string
	CacheSize int
}

// New creates an embedder for the given provider configuration.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache)
	case ProviderLocal, "":
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv creates an embedder based on environment variables.
// Priority: FASTSEARCH_EMBEDDING_PROVIDER, then JINA_API_KEY, then
// OPENAI_API_KEY, falling back to the local provider.
func NewFromEnv() (Embedder, error) {
	provider := os.Getenv("FASTSEARCH_EMBEDDING_PROVIDER")
	cache := NewCache(10000)

	if provider != "" {
		switch strings.ToLower(provider) {
		case ProviderJina:
			return NewJinaProvider("", cache)
		case ProviderOpenAI:
			return NewOpenAIProvider("", cache)
		case ProviderLocal:
			return NewLocalProvider(cache)
		default:
			return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider)
		}
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return NewJinaProvider("", cache)
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return NewOpenAIProvider("", cache)
	}
	return NewLocalProvider(cache)
}

// DetectProvider returns the provider that would be used based on the
// current environment, without constructing one.
func DetectProvider() string {
	if provider := os.Getenv("FASTSEARCH_EMBEDDING_PROVIDER"); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
