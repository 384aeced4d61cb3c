package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 768 // matches BAAI/bge-base-en-v1.5, the default local model

	MaxBatchSize = 100

	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	// EstimatedMemoryMB values are static, not sampled. Remote API
	// providers hold no model weights in-process, so their estimate
	// covers only client/connection overhead.
	remoteProviderMemoryMB = 32
	localProviderMemoryMB  = 440

	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// JinaProvider implements Embedder using the Jina AI embeddings API.
type JinaProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	cache      *Cache
}

// NewJinaProvider creates a new Jina AI embedder.
func NewJinaProvider(apiKey string, cache *Cache) (*JinaProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	return &JinaProvider{
		apiKey:     apiKey,
		model:      DefaultJinaModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
	}, nil
}

func (j *JinaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	vectors := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))

	for i, text := range texts {
		hash := ComputeHash(text)
		if j.cache != nil {
			if emb, ok := j.cache.Get(hash); ok {
				vectors[i] = emb.Vector
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	policy := defaultBackoffPolicy()
	fetched, err := withRetry(ctx, policy, func() ([][]float32, error) {
		return j.callAPI(ctx, missing)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	for k, idx := range missingIdx {
		vectors[idx] = fetched[k]
		if j.cache != nil {
			hash := ComputeHash(texts[idx])
			j.cache.Set(hash, &Embedding{Vector: fetched[k], Dimension: len(fetched[k]), Provider: ProviderJina, Model: j.model, Hash: hash})
		}
	}
	return vectors, nil
}

func (j *JinaProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{"input": texts, "model": j.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.jina.ai/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(b))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	vectors := make([][]float32, len(apiResp.Data))
	for i, d := range apiResp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (j *JinaProvider) Dimension() int         { return JinaDimension }
func (j *JinaProvider) EstimatedMemoryMB() int { return remoteProviderMemoryMB }
func (j *JinaProvider) Provider() string       { return ProviderJina }
func (j *JinaProvider) Model() string          { return j.model }
func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// OpenAIProvider implements Embedder using the OpenAI embeddings API.
type OpenAIProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	cache      *Cache
}

// NewOpenAIProvider creates a new OpenAI embedder.
func NewOpenAIProvider(apiKey string, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      DefaultOpenAIModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
	}, nil
}

func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	vectors := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		hash := ComputeHash(text)
		if o.cache != nil {
			if emb, ok := o.cache.Get(hash); ok {
				vectors[i] = emb.Vector
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	policy := defaultBackoffPolicy()
	fetched, err := withRetry(ctx, policy, func() ([][]float32, error) {
		return o.callAPI(ctx, missing)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	for k, idx := range missingIdx {
		vectors[idx] = fetched[k]
		if o.cache != nil {
			hash := ComputeHash(texts[idx])
			o.cache.Set(hash, &Embedding{Vector: fetched[k], Dimension: len(fetched[k]), Provider: ProviderOpenAI, Model: o.model, Hash: hash})
		}
	}
	return vectors, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{"input": texts, "model": o.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(b))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	vectors := make([][]float32, len(apiResp.Data))
	for i, d := range apiResp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (o *OpenAIProvider) Dimension() int         { return OpenAIDimension }
func (o *OpenAIProvider) EstimatedMemoryMB() int { return remoteProviderMemoryMB }
func (o *OpenAIProvider) Provider() string       { return ProviderOpenAI }
func (o *OpenAIProvider) Model() string          { return o.model }
func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider is a deterministic, dependency-free embedder standing in
// for an on-disk model such as BAAI/bge-base-en-v1.5. It hashes each text
// into a fixed-dimension vector, so identical inputs always produce
// identical vectors and cosine similarity behaves sanely in tests without
// any model weights to load.
type LocalProvider struct {
	model string
	dim   int
	cache *Cache
}

// NewLocalProvider creates a new local embedder at the default dimension.
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{model: "BAAI/bge-base-en-v1.5", dim: LocalDimension, cache: cache}, nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		hash := ComputeHash(text)
		if l.cache != nil {
			if emb, ok := l.cache.Get(hash); ok {
				vectors[i] = emb.Vector
				continue
			}
		}
		vectors[i] = l.hashVector(text)
		if l.cache != nil {
			l.cache.Set(hash, &Embedding{Vector: vectors[i], Dimension: l.dim, Provider: ProviderLocal, Model: l.model, Hash: hash})
		}
	}
	return vectors, nil
}

// hashVector derives a dim-length vector from repeated SHA-256 digests of
// text, normalized to [-1, 1] per component.
func (l *LocalProvider) hashVector(text string) []float32 {
	vector := make([]float32, l.dim)
	block := sha256.Sum256([]byte(text))
	for i := 0; i < l.dim; i++ {
		if i > 0 && i%len(block) == 0 {
			block = sha256.Sum256(block[:])
		}
		vector[i] = (float32(block[i%len(block)])/255.0)*2 - 1
	}
	return vector
}

func (l *LocalProvider) Dimension() int         { return l.dim }
func (l *LocalProvider) EstimatedMemoryMB() int { return localProviderMemoryMB }
func (l *LocalProvider) Provider() string       { return ProviderLocal }
func (l *LocalProvider) Model() string          { return l.model }
func (l *LocalProvider) Close() error           { return nil }

// NormalizeVector normalizes a vector to unit length.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}
