// Package embedder implements the Embedder capability interface the model
// manager loads into named slots: turning text into fixed-dimension
// vectors for the retrieval engine's vector and hybrid search modes.
//
// Three providers are available:
//
//   - local: a deterministic, weight-free stand-in for an on-disk model
//     such as BAAI/bge-base-en-v1.5. Always available, no network calls.
//   - jina: the Jina AI embeddings API.
//   - openai: the OpenAI embeddings API.
//
// Remote providers retry failed API calls with exponential backoff (see
// retry.go). A provider built with a non-nil Cache reuses vectors by
// content hash, so repeated text is not re-embedded; without a cache
// every call embeds its texts afresh.
//
// # Provider Selection
//
//	emb, err := embedder.New(embedder.Config{Provider: "local"})
//
// Or, outside of explicit manager-driven config:
//
//	emb, err := embedder.NewFromEnv()
package embedder
