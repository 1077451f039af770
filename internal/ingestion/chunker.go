package ingestion

import "strings"

// Chunker splits normalized text into overlapping fixed-size windows. Sizes
// are in runes so multi-byte text never splits mid-character.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}

	return &Chunker{size: size, overlap: overlap}
}

// Split returns the ordered windows of text: each at most size runes long,
// consecutive windows overlapping by overlap runes. The final partial window
// is kept when non-empty after trimming. Non-empty input always yields at
// least one chunk.
func (c *Chunker) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	stride := c.size - c.overlap

	var chunks []string
	for start := 0; start < len(runes); start += stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}
	}

	return chunks
}
