package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fastsearch/fastsearch/internal/config"
	"github.com/fastsearch/fastsearch/internal/embedder"
	"github.com/fastsearch/fastsearch/internal/engine"
	"github.com/fastsearch/fastsearch/internal/manager"
	"github.com/fastsearch/fastsearch/internal/reranker"
	"github.com/fastsearch/fastsearch/internal/store"
)

// defaultMaxConcurrent bounds the RPC dispatch pool when the config
// surface doesn't name a value of its own.
const defaultMaxConcurrent = 16

// Daemon wires the RPC method table to the model manager, the search
// engine, and the store, mirroring the original daemon's single process
// owning model manager, config, and search database together.
type Daemon struct {
	*Server

	mgr    *manager.Manager
	logger *slog.Logger

	cfgMu sync.RWMutex
	cfg   *config.Config

	storesMu sync.Mutex
	stores   map[string]store.Store

	reloadConfig func(path string) (*config.Config, error)
}

// NewDaemon binds the daemon's socket and registers every method from the
// method table against mgr and cfg.
func NewDaemon(cfg *config.Config, mgr *manager.Manager, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	srv, err := NewServer(cfg.Daemon.SocketPath, defaultMaxConcurrent, logger)
	if err != nil {
		return nil, err
	}
	d := &Daemon{
		Server:       srv,
		mgr:          mgr,
		logger:       logger,
		cfg:          cfg,
		stores:       make(map[string]store.Store),
		reloadConfig: config.Load,
	}
	d.OnClose(d.cleanup)
	d.registerHandlers()
	return d, nil
}

func (d *Daemon) registerHandlers() {
	d.RegisterHandler("ping", d.handlePing)
	d.RegisterHandler("status", d.handleStatus)
	d.RegisterHandler("search", d.handleSearch)
	d.RegisterHandler("embed", d.handleEmbed)
	d.RegisterHandler("rerank", d.handleRerank)
	d.RegisterHandler("load_model", d.handleLoadModel)
	d.RegisterHandler("unload_model", d.handleUnloadModel)
	d.RegisterHandler("reload_config", d.handleReloadConfig)
	d.RegisterHandler("shutdown", d.handleShutdown)
}

// Run writes the PID file, serves until ctx is done or shutdown fires,
// then removes the PID file. It does not return until the server has
// fully stopped.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.writePIDFile(); err != nil {
		return err
	}
	defer d.removePIDFile()
	return d.Serve(ctx)
}

func (d *Daemon) writePIDFile() error {
	d.cfgMu.RLock()
	path := d.cfg.Daemon.PIDPath
	d.cfgMu.RUnlock()
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (d *Daemon) removePIDFile() {
	d.cfgMu.RLock()
	path := d.cfg.Daemon.PIDPath
	d.cfgMu.RUnlock()
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("rpc: remove PID file", "path", path, "error", err)
	}
}

func (d *Daemon) cleanup() {
	if err := d.mgr.Close(); err != nil {
		d.logger.Warn("rpc: manager close on shutdown", "error", err)
	}
	d.storesMu.Lock()
	defer d.storesMu.Unlock()
	for path, st := range d.stores {
		if err := st.Close(); err != nil {
			d.logger.Warn("rpc: store close on shutdown", "path", path, "error", err)
		}
	}
}

func (d *Daemon) dbPath() string {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	if d.cfg.DBPath != "" {
		return d.cfg.DBPath
	}
	return "fastsearch.db"
}

func (d *Daemon) storeFor(path string, dimension int) (store.Store, error) {
	d.storesMu.Lock()
	defer d.storesMu.Unlock()
	if st, ok := d.stores[path]; ok {
		return st, nil
	}
	st, err := store.Open(path, dimension)
	if err != nil {
		return nil, fmt.Errorf("rpc: open store %q: %w", path, err)
	}
	d.stores[path] = st
	return st, nil
}

func (d *Daemon) handlePing(_ context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{"ok": true}, nil
}

func (d *Daemon) handleStatus(_ context.Context, _ json.RawMessage) (any, error) {
	slots := d.mgr.Status()
	loaded := make(map[string]any, len(slots))
	var totalMB int
	for _, s := range slots {
		if s.State != manager.StateLoaded {
			continue
		}
		loaded[s.Name] = map[string]any{
			"state":        string(s.State),
			"memory_mb":    s.MemoryMB,
			"loaded_at":    s.LoadedAt.Unix(),
			"last_used":    s.LastUsed.Unix(),
			"idle_seconds": time.Since(s.LastUsed).Seconds(),
		}
		totalMB += s.MemoryMB
	}

	d.cfgMu.RLock()
	maxRAM := d.cfg.Memory.MaxRAMMB
	d.cfgMu.RUnlock()

	return map[string]any{
		"uptime_seconds":  d.Uptime().Seconds(),
		"request_count":   d.RequestCount(),
		"socket_path":     d.SocketPath(),
		"loaded_models":   loaded,
		"total_memory_mb": totalMB,
		"max_memory_mb":   maxRAM,
	}, nil
}

type searchParams struct {
	Query  string `json:"query"`
	DBPath string `json:"db_path"`
	Limit  int    `json:"limit"`
	Mode   string `json:"mode"`
	Rerank bool   `json:"rerank"`
}

func (d *Daemon) handleSearch(ctx context.Context, raw json.RawMessage) (any, error) {
	var p searchParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, NewInvalidParamsError(err)
	}
	if p.DBPath == "" {
		p.DBPath = d.dbPath()
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}

	embRes, err := d.mgr.Acquire(ctx, "embedder")
	if err != nil {
		return nil, err
	}
	defer d.mgr.Release("embedder")
	emb := embRes.(embedder.Embedder)

	st, err := d.storeFor(p.DBPath, emb.Dimension())
	if err != nil {
		return nil, err
	}

	mode := engine.Mode(p.Mode)
	if mode == "" {
		mode = engine.ModeHybrid
	}
	var rr reranker.Reranker
	rerankTopK := 0
	if p.Rerank {
		mode = engine.ModeHybridReranked
		rerankTopK = min(p.Limit*3, 30)
		rrRes, err := d.mgr.Acquire(ctx, "reranker")
		if err != nil {
			return nil, err
		}
		defer d.mgr.Release("reranker")
		rr = rrRes.(reranker.Reranker)
	}

	eng := engine.New(st, emb, rr)
	start := time.Now()
	resp, err := eng.Search(ctx, engine.Request{
		Query:      p.Query,
		Limit:      p.Limit,
		Mode:       mode,
		RerankTopK: rerankTopK,
	})
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]any{
			"id":           r.ChunkID,
			"source":       r.Source,
			"chunk_index":  r.ChunkIndex,
			"rank":         r.Rank,
			"content":      r.Content,
			"metadata":     r.Metadata,
			"bm25_rank":    rankOrNull(r.BM25Rank),
			"vec_rank":     rankOrNull(r.VecRank),
			"rrf_score":    r.RRFScore,
			"rerank_score": r.RerankScore,
			"reranked":     r.Reranked,
		}
	}
	return map[string]any{
		"results":        results,
		"mode":           string(resp.Mode),
		"search_time_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// rankOrNull reports a 1-based BM25/vector rank as JSON null rather than
// the ambiguous literal 0 when the candidate never appeared in that list.
func rankOrNull(rank int) any {
	if rank == 0 {
		return nil
	}
	return rank
}

func (d *Daemon) handleEmbed(ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Texts []string `json:"texts"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, NewInvalidParamsError(err)
	}

	res, err := d.mgr.Acquire(ctx, "embedder")
	if err != nil {
		return nil, err
	}
	defer d.mgr.Release("embedder")
	emb := res.(embedder.Embedder)

	start := time.Now()
	vectors, err := emb.EmbedBatch(ctx, p.Texts)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"embeddings":    vectors,
		"count":         len(vectors),
		"embed_time_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

func (d *Daemon) handleRerank(ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Query     string   `json:"query"`
		Documents []string `json:"documents"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, NewInvalidParamsError(err)
	}

	res, err := d.mgr.Acquire(ctx, "reranker")
	if err != nil {
		return nil, err
	}
	defer d.mgr.Release("reranker")
	rr := res.(reranker.Reranker)

	start := time.Now()
	ranked, err := reranker.RerankWithIndices(ctx, rr, p.Query, p.Documents, 0)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(p.Documents))
	rankedOut := make([]map[string]any, len(ranked))
	for i, sc := range ranked {
		scores[sc.Index] = sc.Score
		rankedOut[i] = map[string]any{"index": sc.Index, "score": sc.Score}
	}
	return map[string]any{
		"scores":         scores,
		"ranked":         rankedOut,
		"rerank_time_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

func (d *Daemon) handleLoadModel(ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Slot string `json:"slot"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, NewInvalidParamsError(err)
	}
	if p.Slot == "" {
		return nil, NewInvalidParamsError(fmt.Errorf("slot is required"))
	}

	res, err := d.mgr.Acquire(ctx, p.Slot)
	if err != nil {
		return nil, err
	}
	d.mgr.Release(p.Slot)
	return map[string]any{"slot": p.Slot, "memory_mb": res.EstimatedMemoryMB()}, nil
}

func (d *Daemon) handleUnloadModel(ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		Slot string `json:"slot"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, NewInvalidParamsError(err)
	}
	if err := d.mgr.Unload(ctx, p.Slot); err != nil {
		return nil, err
	}
	return map[string]any{"slot": p.Slot}, nil
}

func (d *Daemon) handleReloadConfig(_ context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		ConfigPath string `json:"config_path"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, NewInvalidParamsError(err)
		}
	}

	d.cfgMu.RLock()
	path := p.ConfigPath
	if path == "" {
		path = d.cfg.ConfigPath
	}
	d.cfgMu.RUnlock()

	newCfg, err := d.reloadConfig(path)
	if err != nil {
		return nil, err
	}

	d.cfgMu.Lock()
	d.cfg = newCfg
	d.cfgMu.Unlock()

	// Policy/idle-timeout changes take effect immediately; the next
	// sweeper tick evaluates the new timeout against the slot's existing
	// last-used time rather than forcing a check right now.
	for slot, mc := range newCfg.Models {
		idle := time.Duration(mc.IdleTimeoutSeconds) * time.Second
		if err := d.mgr.Reload(slot, manager.Policy(mc.KeepLoaded), idle); err != nil {
			d.logger.Warn("rpc: reload_config could not update slot", "slot", slot, "error", err)
		}
	}
	return map[string]any{"reloaded": true}, nil
}

func (d *Daemon) handleShutdown(_ context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{"stopping": true}, nil
}
