// Package indexer turns raw source text into chunks and embeddings and
// commits them to the store as one all-or-nothing unit per source.
//
// # Basic Usage
//
//	idx := indexer.New(store, embedder, indexer.Config{})
//	stats, err := idx.IndexSource(ctx, "docs/intro.md", content)
//	fmt.Printf("indexed %d chunks in %v\n", stats.ChunksCreated, stats.Duration)
//
// # Pipeline
//
// IndexSource runs chunk -> embed -> store.ReindexSource:
//
//  1. Chunk: split content into chunker.Chunk values (Markdown-aware if
//     the source name ends in .md/.markdown, plain-text chunking otherwise).
//  2. Embed: batch chunk contents through the Embedder, bounded by
//     embedder.MaxBatchSize, fanned out across Config.Workers goroutines.
//  3. Store: call store.ReindexSource with the full set of chunks and
//     embeddings in one transaction, so a failure partway through embedding
//     or storage leaves the source's previous contents untouched.
//
// # Concurrent Multi-Source Indexing
//
// IndexSources indexes many sources concurrently, bounded by Config.Workers,
// using the same limited errgroup (errgroup.SetLimit) as a single source's
// embedding fan-out. Per-source sourceLocks (see lock.go) prevent two concurrent calls
// from racing to reindex the same source; a second caller for a source
// already being indexed returns ErrSourceBusy rather than blocking.
package indexer
