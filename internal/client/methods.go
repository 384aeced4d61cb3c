package client

import (
	"context"
	"encoding/json"
)

// StatusResult is the daemon's status response.
type StatusResult struct {
	UptimeSeconds float64        `json:"uptime_seconds"`
	RequestCount  int64          `json:"request_count"`
	SocketPath    string         `json:"socket_path"`
	LoadedModels  map[string]any `json:"loaded_models"`
	TotalMemoryMB int            `json:"total_memory_mb"`
	MaxMemoryMB   int            `json:"max_memory_mb"`
}

// SearchOptions customizes a Search call; the zero value matches the
// daemon's own defaults (db_path "fastsearch.db", limit 10, mode hybrid).
type SearchOptions struct {
	DBPath string
	Limit  int
	Mode   string
	Rerank bool
}

// SearchHit is one ranked chunk in a SearchResponse.
type SearchHit struct {
	ChunkID     int64             `json:"id"`
	Source      string            `json:"source"`
	ChunkIndex  int64             `json:"chunk_index"`
	Rank        int               `json:"rank"`
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata"`
	BM25Rank    *int              `json:"bm25_rank"`
	VecRank     *int              `json:"vec_rank"`
	RRFScore    float64           `json:"rrf_score"`
	RerankScore float64           `json:"rerank_score"`
	Reranked    bool              `json:"reranked"`
}

// SearchResponse is the daemon's search result.
type SearchResponse struct {
	Results      []SearchHit `json:"results"`
	Mode         string      `json:"mode"`
	SearchTimeMS float64     `json:"search_time_ms"`
}

// EmbedResponse is the daemon's embed result.
type EmbedResponse struct {
	Embeddings  [][]float32 `json:"embeddings"`
	Count       int         `json:"count"`
	EmbedTimeMS float64     `json:"embed_time_ms"`
}

// RankedDoc pairs a reranked document's original index with its score.
type RankedDoc struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// RerankResponse is the daemon's rerank result.
type RerankResponse struct {
	Scores       []float64   `json:"scores"`
	Ranked       []RankedDoc `json:"ranked"`
	RerankTimeMS float64     `json:"rerank_time_ms"`
}

// ModelResult is the daemon's load_model result.
type ModelResult struct {
	Slot     string `json:"slot"`
	MemoryMB int    `json:"memory_mb"`
}

// SlotResult is the daemon's unload_model result.
type SlotResult struct {
	Slot string `json:"slot"`
}

// Ping checks whether the daemon is responding.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	raw, err := c.call(ctx, "ping", nil)
	if err != nil {
		return false, err
	}
	var r struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return false, err
	}
	return r.OK, nil
}

// Status fetches daemon uptime, request count, and model memory usage.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	raw, err := c.call(ctx, "status", nil)
	if err != nil {
		return nil, err
	}
	var r StatusResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Search runs a search against dbPath (or the daemon's default if opts
// leaves DBPath empty).
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error) {
	params := map[string]any{
		"query":   query,
		"db_path": opts.DBPath,
		"limit":   opts.Limit,
		"mode":    opts.Mode,
		"rerank":  opts.Rerank,
	}
	raw, err := c.call(ctx, "search", params)
	if err != nil {
		return nil, err
	}
	var r SearchResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Embed generates embedding vectors for texts.
func (c *Client) Embed(ctx context.Context, texts []string) (*EmbedResponse, error) {
	raw, err := c.call(ctx, "embed", map[string]any{"texts": texts})
	if err != nil {
		return nil, err
	}
	var r EmbedResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Rerank scores documents against query with the cross-encoder reranker.
func (c *Client) Rerank(ctx context.Context, query string, documents []string) (*RerankResponse, error) {
	raw, err := c.call(ctx, "rerank", map[string]any{"query": query, "documents": documents})
	if err != nil {
		return nil, err
	}
	var r RerankResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadModel loads a model slot, or is a no-op if already loaded.
func (c *Client) LoadModel(ctx context.Context, slot string) (*ModelResult, error) {
	raw, err := c.call(ctx, "load_model", map[string]any{"slot": slot})
	if err != nil {
		return nil, err
	}
	var r ModelResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UnloadModel unloads a model slot.
func (c *Client) UnloadModel(ctx context.Context, slot string) (*SlotResult, error) {
	raw, err := c.call(ctx, "unload_model", map[string]any{"slot": slot})
	if err != nil {
		return nil, err
	}
	var r SlotResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ReloadConfig tells the daemon to re-read its configuration file.
// configPath may be empty to reuse the path the daemon started with.
func (c *Client) ReloadConfig(ctx context.Context, configPath string) (bool, error) {
	params := map[string]any{}
	if configPath != "" {
		params["config_path"] = configPath
	}
	raw, err := c.call(ctx, "reload_config", params)
	if err != nil {
		return false, err
	}
	var r struct {
		Reloaded bool `json:"reloaded"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return false, err
	}
	return r.Reloaded, nil
}

// Shutdown asks the daemon to stop, then disconnects regardless of the
// call's outcome.
func (c *Client) Shutdown(ctx context.Context) (bool, error) {
	raw, err := c.call(ctx, "shutdown", nil)
	c.Close()
	if err != nil {
		return false, err
	}
	var r struct {
		Stopping bool `json:"stopping"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return false, err
	}
	return r.Stopping, nil
}
