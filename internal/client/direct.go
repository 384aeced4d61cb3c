package client

import (
	"context"
	"errors"
	"time"

	"github.com/fastsearch/fastsearch/internal/config"
	"github.com/fastsearch/fastsearch/internal/embedder"
	"github.com/fastsearch/fastsearch/internal/engine"
	"github.com/fastsearch/fastsearch/internal/store"
)

const defaultDBPath = "fastsearch.db"

func resolvedConfig() *config.Config {
	if cfg, err := config.Load(""); err == nil {
		return cfg
	}
	d := config.Default()
	return &d
}

// Search runs query against the daemon if it's reachable, and otherwise
// performs the same hybrid search in-process: this is the "daemon-absent
// is a normal branch, not an error" convenience path. Direct mode has no
// reranker loaded, so rerank is ignored when falling back.
func Search(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error) {
	cfg := resolvedConfig()
	c := New(cfg.Daemon.SocketPath, 10*time.Second)
	defer c.Close()

	resp, err := c.Search(ctx, query, opts)
	if err == nil {
		return resp.Results, nil
	}
	if !errors.Is(err, ErrDaemonNotRunning) {
		return nil, err
	}
	return directSearch(ctx, query, opts)
}

func directSearch(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	emb, err := embedder.New(embedder.Config{Provider: embedder.ProviderLocal})
	if err != nil {
		return nil, err
	}
	defer emb.Close()

	st, err := store.Open(dbPath, emb.Dimension())
	if err != nil {
		return nil, err
	}
	defer st.Close()

	mode := engine.Mode(opts.Mode)
	if mode == "" {
		mode = engine.ModeHybrid
	}

	eng := engine.New(st, emb, nil)
	resp, err := eng.Search(ctx, engine.Request{Query: query, Limit: limit, Mode: mode})
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, len(resp.Results))
	for i, r := range resp.Results {
		hits[i] = SearchHit{
			ChunkID:     r.ChunkID,
			Source:      r.Source,
			ChunkIndex:  r.ChunkIndex,
			Rank:        r.Rank,
			Content:     r.Content,
			Metadata:    r.Metadata,
			BM25Rank:    rankPtrOrNil(r.BM25Rank),
			VecRank:     rankPtrOrNil(r.VecRank),
			RRFScore:    r.RRFScore,
			RerankScore: r.RerankScore,
			Reranked:    r.Reranked,
		}
	}
	return hits, nil
}

// rankPtrOrNil mirrors the daemon's rankOrNull wire behavior for direct
// mode, which builds SearchHit from engine.Response locally rather than
// unmarshaling it off the wire.
func rankPtrOrNil(rank int) *int {
	if rank == 0 {
		return nil
	}
	return &rank
}

// Embed generates embeddings via the daemon if reachable, and otherwise
// loads a local embedder in-process.
func Embed(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := resolvedConfig()
	c := New(cfg.Daemon.SocketPath, 10*time.Second)
	defer c.Close()

	resp, err := c.Embed(ctx, texts)
	if err == nil {
		return resp.Embeddings, nil
	}
	if !errors.Is(err, ErrDaemonNotRunning) {
		return nil, err
	}

	emb, err := embedder.New(embedder.Config{Provider: embedder.ProviderLocal})
	if err != nil {
		return nil, err
	}
	defer emb.Close()
	return emb.EmbedBatch(ctx, texts)
}
