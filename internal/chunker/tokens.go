package chunker

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// encodingName is the BPE table used for the precise token estimate. It
// doesn't need to match any particular embedding model's own tokenizer;
// it only needs to be stable so metadata.est_tokens is comparable across
// a single store.
const encodingName = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// EstimateTokensPrecise returns a BPE-based token count, supplementing
// EstimateTokens' char/4 heuristic in chunk metadata. On first call it
// lazily loads the encoding; if that fails (e.g. no network access to
// fetch the BPE ranks on a cold cache), it falls back to the char
// heuristic rather than failing the whole indexing call.
func EstimateTokensPrecise(text string) int {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(encodingName)
	})
	if encErr != nil || enc == nil {
		return EstimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}
