// Package chunker splits document text into fixed-size spans for embedding.
package chunker

// DefaultChunkSize is the number of characters per chunk when none is given.
const DefaultChunkSize = 500

// Split cuts text into contiguous, non-overlapping spans of at most size
// characters in source order. Sizes count code points so every span is
// valid UTF-8; joining the spans yields text unchanged.
func Split(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	chunks := make([]string, 0, len(text)/size+1)

	start, count := 0, 0
	for i := range text {
		if count == size {
			chunks = append(chunks, text[start:i])
			start, count = i, 0
		}
		count++
	}
	chunks = append(chunks, text[start:])

	return chunks
}
