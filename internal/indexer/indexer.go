package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fastsearch/fastsearch/internal/chunker"
	"github.com/fastsearch/fastsearch/internal/embedder"
	"github.com/fastsearch/fastsearch/internal/store"
)

// ErrSourceBusy is returned by IndexSource/IndexSources when a source is
// already mid-reindex on another call.
var ErrSourceBusy = errors.New("indexer: source is already being indexed")

// Config controls the indexing pipeline.
type Config struct {
	// Workers bounds concurrent embedding batches and, for IndexSources,
	// concurrent per-source pipelines. Defaults to runtime.NumCPU().
	Workers int
	// TargetChars and OverlapChars pass through to the chunker; zero
	// values fall back to chunker.DefaultTargetChars/DefaultOverlapChars.
	TargetChars  int
	OverlapChars int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.TargetChars <= 0 {
		c.TargetChars = chunker.DefaultTargetChars
	}
	if c.OverlapChars <= 0 {
		c.OverlapChars = chunker.DefaultOverlapChars
	}
	return c
}

// Stats summarizes one IndexSource or IndexSources call.
type Stats struct {
	SourcesIndexed int
	SourcesFailed  int
	ChunksCreated  int
	Duration       time.Duration
	Errors         []string
}

// Indexer runs the chunk -> embed -> store pipeline.
type Indexer struct {
	store store.Store
	emb   embedder.Embedder
	cfg   Config

	locksMu sync.Mutex
	locks   map[string]*sourceLock
}

// New creates an Indexer over the given store and embedder.
func New(st store.Store, emb embedder.Embedder, cfg Config) *Indexer {
	return &Indexer{
		store: st,
		emb:   emb,
		cfg:   cfg.withDefaults(),
		locks: make(map[string]*sourceLock),
	}
}

func (idx *Indexer) lockFor(source string) *sourceLock {
	idx.locksMu.Lock()
	defer idx.locksMu.Unlock()
	l, ok := idx.locks[source]
	if !ok {
		l = &sourceLock{}
		idx.locks[source] = l
	}
	return l
}

// IndexSource chunks content, embeds every chunk, and atomically replaces
// source's contents in the store. Only one IndexSource call per source may
// run at a time; a concurrent call for the same source returns ErrSourceBusy.
func (idx *Indexer) IndexSource(ctx context.Context, source, content string) (*Stats, error) {
	lock := idx.lockFor(source)
	if !lock.TryAcquire() {
		return nil, ErrSourceBusy
	}
	defer lock.Release()

	start := time.Now()
	stats := &Stats{}

	chunks := chunkSource(source, content, idx.cfg)
	if len(chunks) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	items, err := idx.embedChunks(ctx, source, chunks)
	if err != nil {
		stats.SourcesFailed = 1
		stats.Duration = time.Since(start)
		return stats, fmt.Errorf("indexer: embed %s: %w", source, err)
	}

	if _, err := idx.store.ReindexSource(ctx, source, items); err != nil {
		stats.SourcesFailed = 1
		stats.Duration = time.Since(start)
		return stats, fmt.Errorf("indexer: store %s: %w", source, err)
	}

	stats.SourcesIndexed = 1
	stats.ChunksCreated = len(items)
	stats.Duration = time.Since(start)
	return stats, nil
}

// Source is one (name, content) pair for IndexSources.
type Source struct {
	Name    string
	Content string
}

// IndexSources indexes many sources concurrently, bounded by Config.Workers.
// A failure on one source is recorded in Stats.Errors and does not stop the
// others.
func (idx *Indexer) IndexSources(ctx context.Context, sources []Source) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.Workers)

	for _, src := range sources {
		src := src
		g.Go(func() error {
			s, err := idx.IndexSource(gctx, src.Name, src.Content)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.SourcesFailed++
				stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", src.Name, err))
				return nil
			}
			stats.SourcesIndexed += s.SourcesIndexed
			stats.ChunksCreated += s.ChunksCreated
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Duration = time.Since(start)
	return stats, nil
}

func chunkSource(source, content string, cfg Config) []chunker.Chunk {
	if isMarkdown(source) {
		return chunker.ChunkMarkdown(content, cfg.TargetChars, cfg.OverlapChars)
	}
	return chunker.ChunkText(content, cfg.TargetChars, cfg.OverlapChars)
}

func isMarkdown(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}

// embedChunks embeds chunk contents in bounded-size batches, fanned out
// across at most idx.cfg.Workers goroutines, and assembles store.InsertItems
// carrying chunk_index and section metadata.
func (idx *Indexer) embedChunks(ctx context.Context, source string, chunks []chunker.Chunk) ([]store.InsertItem, error) {
	items := make([]store.InsertItem, len(chunks))
	for i, c := range chunks {
		items[i] = store.InsertItem{
			Source:     source,
			ChunkIndex: i,
			Content:    c.Content,
			Metadata:   chunkMetadata(c),
		}
	}

	type batch struct {
		start int
		texts []string
	}
	var batches []batch
	for i := 0; i < len(chunks); i += embedder.MaxBatchSize {
		end := i + embedder.MaxBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-i)
		for j := i; j < end; j++ {
			texts[j-i] = chunks[j].Content
		}
		batches = append(batches, batch{start: i, texts: texts})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.Workers)
	for _, b := range batches {
		b := b
		g.Go(func() error {
			vecs, err := idx.emb.EmbedBatch(gctx, b.texts)
			if err != nil {
				return err
			}
			for j, v := range vecs {
				items[b.start+j].Embedding = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func chunkMetadata(c chunker.Chunk) map[string]string {
	meta := map[string]string{
		"est_tokens": strconv.Itoa(chunker.EstimateTokensPrecise(c.Content)),
	}
	if c.Section != "" {
		meta["section"] = c.Section
	}
	return meta
}
