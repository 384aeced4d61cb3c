// Package engine implements the retrieval engine: four search modes over
// a store.Store, fused and ranked per the hybrid search contract.
//
// # Search Modes
//
//   - bm25: lexical search via the store's FTS5 index.
//   - vector: dense cosine similarity against an embedded query.
//   - hybrid: bm25 and vector run concurrently, fused by Reciprocal Rank
//     Fusion (RRF).
//   - hybrid_reranked: hybrid, then the top candidates are re-scored by a
//     cross-encoder-style Reranker and re-ordered by that score.
//
// # Reciprocal Rank Fusion
//
//	RRF(d) = sum_i  weight_i / (k + rank_i(d))
//
// k defaults to 60. A chunk absent from one of the two candidate lists
// contributes 0 for that list, not a penalty rank. Ties are broken first
// by the lower combined rank sum, then by lower chunk id.
//
// # Basic Usage
//
//	e := engine.New(store, embedder, reranker) // reranker may be nil
//	resp, err := e.Search(ctx, engine.Request{
//	    Query: "paragraph-based chunking",
//	    Mode:  engine.ModeHybrid,
//	    Limit: 10,
//	})
package engine
