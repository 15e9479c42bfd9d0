package extraction

import (
	"fmt"
	"strings"
)

// Chunk is a slice of document text sized to the extractor's limits,
// together with its byte offset in the original document.
type Chunk struct {
	Index  int
	Offset int
	Text   string
}

// SplitDocument splits text into chunks of at most maxSize bytes, preferring
// sentence boundaries and falling back to hard cuts for oversized sentences.
// Offsets index into the original text so mention spans stay document-relative.
func SplitDocument(text string, maxSize int) ([]Chunk, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max chunk size must be positive")
	}
	if strings.TrimSpace(text) == "" {
		return []Chunk{}, nil
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + maxSize
		if end >= len(text) {
			end = len(text)
		} else {
			// Cut at the last sentence boundary inside the window, or at
			// the last whitespace when there is none.
			if cut := lastBoundary(text[start:end]); cut > 0 {
				end = start + cut
			}
		}

		segment := text[start:end]
		if strings.TrimSpace(segment) != "" {
			chunks = append(chunks, Chunk{
				Index:  len(chunks),
				Offset: start,
				Text:   segment,
			})
		}
		start = end
	}

	return chunks, nil
}

// lastBoundary returns the index just past the last sentence terminator in
// segment, or past the last whitespace when no terminator exists, or 0 when
// neither exists.
func lastBoundary(segment string) int {
	boundary := 0
	for i := 0; i < len(segment); i++ {
		switch segment[i] {
		case '.', '!', '?', '\n':
			boundary = i + 1
		}
	}
	if boundary > 0 {
		return boundary
	}
	for i := len(segment) - 1; i >= 0; i-- {
		if segment[i] == ' ' {
			return i + 1
		}
	}
	return 0
}
