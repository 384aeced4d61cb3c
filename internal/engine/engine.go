package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fastsearch/fastsearch/internal/embedder"
	"github.com/fastsearch/fastsearch/internal/fserr"
	"github.com/fastsearch/fastsearch/internal/reranker"
	"github.com/fastsearch/fastsearch/internal/store"
	"github.com/fastsearch/fastsearch/pkg/types"
)

// Mode selects how Search ranks candidates.
type Mode string

const (
	ModeBM25           Mode = "bm25"
	ModeVector         Mode = "vector"
	ModeHybrid         Mode = "hybrid"
	ModeHybridReranked Mode = "hybrid_reranked"

	// DefaultRRFConstant is the k in RRF(d) = sum 1/(k+rank). 60 is the
	// standard value used by most BM25+vector RRF implementations.
	DefaultRRFConstant = 60.0

	minFetch = 20
)

// Request describes one search call.
type Request struct {
	Query       string
	Limit       int
	Mode        Mode
	RerankTopK  int // only used by ModeHybridReranked
	RRFConstant float64
	UseCache    bool
	CacheTTL    time.Duration
}

// Response is the result of a search call.
type Response struct {
	Results    []types.SearchResult
	Mode       Mode
	Duration   time.Duration
	CacheHit   bool
	BM25Count  int
	VecCount   int
}

// Engine coordinates BM25, vector, and reranked retrieval against a store.
type Engine struct {
	store    store.Store
	embedder embedder.Embedder
	reranker reranker.Reranker

	cacheMu sync.RWMutex
	cache   *lru.Cache[[32]byte, *cacheEntry]
}

type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// New creates an Engine. reranker may be nil; ModeHybridReranked then
// fails with fserr.ModelDisabled.
func New(s store.Store, emb embedder.Embedder, rr reranker.Reranker) *Engine {
	cache, err := lru.New[[32]byte, *cacheEntry](1000)
	if err != nil {
		panic(fmt.Sprintf("engine: failed to create query cache: %v", err))
	}
	return &Engine{store: s, embedder: emb, reranker: rr, cache: cache}
}

// Search dispatches to the mode-specific implementation.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := e.normalizeRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := e.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	var resp *Response
	var err error
	switch req.Mode {
	case ModeBM25:
		resp, err = e.searchBM25(ctx, req)
	case ModeVector:
		resp, err = e.searchVector(ctx, req)
	case ModeHybrid:
		resp, err = e.searchHybrid(ctx, req)
	case ModeHybridReranked:
		resp, err = e.searchHybridReranked(ctx, req)
	default:
		return nil, fserr.Newf(fserr.InvalidArgument, "engine: unsupported search mode %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	resp.Mode = req.Mode
	resp.Duration = time.Since(start)

	if req.UseCache {
		e.storeInCache(req, resp)
	}
	return resp, nil
}

func (e *Engine) normalizeRequest(req *Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return fserr.New(fserr.EmptyQuery, "engine: query cannot be empty")
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = DefaultRRFConstant
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = time.Hour
	}
	return nil
}

// fetchLimit implements N_fetch = max(limit*4, 20).
func fetchLimit(limit int) int {
	if n := limit * 4; n > minFetch {
		return n
	}
	return minFetch
}

func (e *Engine) searchBM25(ctx context.Context, req Request) (*Response, error) {
	hits, err := e.store.SearchBM25(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	rs := make([]ranked, len(hits))
	for i, h := range hits {
		rs[i] = ranked{id: h.ChunkID, bm25Rank: i + 1}
	}
	results, err := e.hydrate(ctx, rs, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{Results: results, BM25Count: len(hits)}, nil
}

func (e *Engine) searchVector(ctx context.Context, req Request) (*Response, error) {
	if e.embedder == nil {
		return nil, fserr.New(fserr.ModelDisabled, "engine: no embedder available for vector search")
	}
	queryVec, err := e.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	hits, err := e.store.SearchVector(ctx, queryVec, req.Limit)
	if err != nil {
		return nil, err
	}
	rs := make([]ranked, len(hits))
	for i, h := range hits {
		rs[i] = ranked{id: h.ChunkID, vecRank: i + 1}
	}
	results, err := e.hydrate(ctx, rs, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{Results: results, VecCount: len(hits)}, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fserr.Wrap(fserr.ModelLoadFailed, err)
	}
	return vectors[0], nil
}

// candidateSets runs BM25 and vector search concurrently, each fetching n
// candidates, and returns both raw result lists.
func (e *Engine) candidateSets(ctx context.Context, query string, n int) ([]store.TextResult, []store.VectorResult, error) {
	var bm25Hits []store.TextResult
	var vecHits []store.VectorResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.store.SearchBM25(gctx, query, n)
		if err != nil {
			return err
		}
		bm25Hits = hits
		return nil
	})
	g.Go(func() error {
		if e.embedder == nil {
			return nil // vector candidates simply empty; hybrid still works on bm25 alone
		}
		queryVec, err := e.embedQuery(gctx, query)
		if err != nil {
			return err
		}
		hits, err := e.store.SearchVector(gctx, queryVec, n)
		if err != nil {
			return err
		}
		vecHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return bm25Hits, vecHits, nil
}

func (e *Engine) searchHybrid(ctx context.Context, req Request) (*Response, error) {
	n := fetchLimit(req.Limit)
	bm25Hits, vecHits, err := e.candidateSets(ctx, req.Query, n)
	if err != nil {
		return nil, err
	}

	fused := fuseRRF(bm25Hits, vecHits, req.RRFConstant)
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}
	results, err := e.hydrate(ctx, fused, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{Results: results, BM25Count: len(bm25Hits), VecCount: len(vecHits)}, nil
}

func (e *Engine) searchHybridReranked(ctx context.Context, req Request) (*Response, error) {
	if e.reranker == nil {
		return nil, fserr.New(fserr.ModelDisabled, "engine: no reranker available for hybrid_reranked search")
	}

	candidateLimit := req.Limit
	if req.RerankTopK > candidateLimit {
		candidateLimit = req.RerankTopK
	}
	n := fetchLimit(candidateLimit)

	bm25Hits, vecHits, err := e.candidateSets(ctx, req.Query, n)
	if err != nil {
		return nil, err
	}

	fused := fuseRRF(bm25Hits, vecHits, req.RRFConstant)
	if len(fused) > candidateLimit {
		fused = fused[:candidateLimit]
	}

	hydrated, err := e.hydrate(ctx, fused, candidateLimit)
	if err != nil {
		return nil, err
	}

	// Candidates are fetched at candidateLimit (>= rerank_top_k) so the RRF
	// fusion has enough of a pool to draw from, but only the top
	// rerank_top_k of them are actually scored by the reranker.
	if req.RerankTopK > 0 && len(hydrated) > req.RerankTopK {
		hydrated = hydrated[:req.RerankTopK]
	}

	contents := make([]string, len(hydrated))
	for i, r := range hydrated {
		contents[i] = r.Content
	}
	scores, err := e.reranker.ScorePairs(ctx, req.Query, contents)
	if err != nil {
		return nil, fserr.Wrap(fserr.ModelLoadFailed, err)
	}
	for i := range hydrated {
		hydrated[i].RerankScore = scores[i]
		hydrated[i].Reranked = true
	}

	sort.SliceStable(hydrated, func(i, j int) bool {
		if hydrated[i].RerankScore != hydrated[j].RerankScore {
			return hydrated[i].RerankScore > hydrated[j].RerankScore
		}
		return hydrated[i].RRFScore > hydrated[j].RRFScore
	})
	if len(hydrated) > req.Limit {
		hydrated = hydrated[:req.Limit]
	}
	for i := range hydrated {
		hydrated[i].Rank = i + 1
	}

	return &Response{Results: hydrated, BM25Count: len(bm25Hits), VecCount: len(vecHits)}, nil
}

// ranked is the fused view of a candidate before its chunk row is loaded.
type ranked struct {
	id       int64
	bm25Rank int // 1-based, 0 if absent from the BM25 list
	vecRank  int // 1-based, 0 if absent from the vector list
	rrf      float64
}

// fuseRRF merges two rank-ordered candidate lists by Reciprocal Rank
// Fusion. Ties are broken by the lower combined rank sum, then by lower
// chunk id.
func fuseRRF(bm25Hits []store.TextResult, vecHits []store.VectorResult, k float64) []ranked {
	if k == 0 {
		k = DefaultRRFConstant
	}

	byID := make(map[int64]*ranked)
	order := func(id int64) *ranked {
		if r, ok := byID[id]; ok {
			return r
		}
		r := &ranked{id: id}
		byID[id] = r
		return r
	}

	for i, h := range bm25Hits {
		r := order(h.ChunkID)
		r.bm25Rank = i + 1
		r.rrf += 1.0 / (k + float64(i+1))
	}
	for i, h := range vecHits {
		r := order(h.ChunkID)
		r.vecRank = i + 1
		r.rrf += 1.0 / (k + float64(i+1))
	}

	out := make([]ranked, 0, len(byID))
	for _, r := range byID {
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].rrf != out[j].rrf {
			return out[i].rrf > out[j].rrf
		}
		si := rankSum(out[i])
		sj := rankSum(out[j])
		if si != sj {
			return si < sj
		}
		return out[i].id < out[j].id
	})
	return out
}

func rankSum(r ranked) int {
	return r.bm25Rank + r.vecRank
}

// hydrate loads chunk rows for the top `limit` ranked candidates and
// converts them into SearchResult, preserving fused rank order. Chunks
// that fail to load are skipped rather than failing the whole search.
func (e *Engine) hydrate(ctx context.Context, rs []ranked, limit int) ([]types.SearchResult, error) {
	if limit > 0 && limit < len(rs) {
		rs = rs[:limit]
	}
	ids := make([]int64, len(rs))
	for i, r := range rs {
		ids[i] = r.id
	}
	chunks, err := e.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(rs))
	for _, r := range rs {
		c, ok := chunks[r.id]
		if !ok {
			continue
		}
		results = append(results, types.SearchResult{
			ChunkID:    c.ID,
			Source:     c.Source,
			ChunkIndex: int64(c.ChunkIndex),
			Rank:       len(results) + 1,
			Content:    c.Content,
			Metadata:   c.Metadata,
			BM25Rank:   r.bm25Rank,
			VecRank:    r.vecRank,
			RRFScore:   r.rrf,
		})
	}
	return results, nil
}

func (e *Engine) checkCache(req Request) *Response {
	hash := queryHash(req)
	e.cacheMu.RLock()
	entry, found := e.cache.Get(hash)
	if !found {
		e.cacheMu.RUnlock()
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		e.cacheMu.RUnlock()
		e.cacheMu.Lock()
		e.cache.Remove(hash)
		e.cacheMu.Unlock()
		return nil
	}
	resp := copyResponse(entry.response)
	e.cacheMu.RUnlock()
	return resp
}

func (e *Engine) storeInCache(req Request, resp *Response) {
	hash := queryHash(req)
	entry := &cacheEntry{response: copyResponse(resp), expiresAt: time.Now().Add(req.CacheTTL)}
	e.cacheMu.Lock()
	e.cache.Add(hash, entry)
	e.cacheMu.Unlock()
}

// InvalidateCache purges all cached query results. Cache invalidation is
// whole-cache because individual entries don't track which sources they
// depended on; calling this after any reindex is cheap relative to
// staleness risk.
func (e *Engine) InvalidateCache() {
	e.cacheMu.Lock()
	e.cache.Purge()
	e.cacheMu.Unlock()
}

func queryHash(req Request) [32]byte {
	var b strings.Builder
	b.WriteString(req.Query)
	b.WriteByte('|')
	b.WriteString(string(req.Mode))
	b.WriteByte('|')
	fmt.Fprintf(&b, "%d|%d", req.Limit, req.RerankTopK)
	return sha256.Sum256([]byte(b.String()))
}

func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := &Response{
		Mode:      src.Mode,
		Duration:  src.Duration,
		CacheHit:  src.CacheHit,
		BM25Count: src.BM25Count,
		VecCount:  src.VecCount,
		Results:   make([]types.SearchResult, len(src.Results)),
	}
	copy(dst.Results, src.Results)
	return dst
}
