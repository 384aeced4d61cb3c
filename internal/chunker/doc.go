// Package chunker splits source text into paragraph-sized chunks with
// character overlap, for indexing into the store.
//
// # Plain Text
//
//	chunks := chunker.ChunkText(text, chunker.DefaultTargetChars, chunker.DefaultOverlapChars)
//
// Paragraphs (blank-line separated) accumulate into a chunk until adding
// the next paragraph would exceed the target size, at which point the
// chunk is emitted and a new one starts, carrying forward the last
// overlapChars characters of the previous chunk as a prefix. A paragraph
// that alone exceeds the target is sub-split on sentence boundaries by
// splitLongParagraph; if it has no sentence boundary it is emitted whole.
//
// # Markdown
//
//	sections := chunker.ChunkMarkdown(text, chunker.DefaultTargetChars, chunker.DefaultOverlapChars)
//
// Markdown input is first split on ATX heading boundaries (# through
// ######); each section is chunked independently via ChunkText, and every
// resulting chunk carries the nearest preceding heading text in its
// Section field.
package chunker
