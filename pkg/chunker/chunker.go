package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidChunkSize is returned when the word budget is not positive.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// paragraphSeparator matches a blank line, tolerating trailing spaces and CRLF endings.
var paragraphSeparator = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// Chunk is one bounded, ordered slice of the source document.
type Chunk struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// Split partitions text into chunks of at most chunkSize words.
// Paragraphs are kept together whenever they fit in the current chunk;
// a paragraph longer than chunkSize is sliced into full chunks and its
// remainder starts the next chunk.
func Split(text string, chunkSize int) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, chunkSize)
	}

	var (
		chunks  []Chunk
		current []string
	)

	flush := func(words []string) {
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Text:      strings.Join(words, " "),
			WordCount: len(words),
		})
	}

	for _, paragraph := range paragraphSeparator.Split(text, -1) {
		if strings.TrimSpace(paragraph) == "" {
			continue
		}
		words := strings.Fields(paragraph)

		if len(current)+len(words) <= chunkSize {
			current = append(current, words...)
			continue
		}

		if len(current) > 0 {
			flush(current)
			current = nil
		}

		remaining := words
		for len(remaining) > chunkSize {
			flush(remaining[:chunkSize])
			remaining = remaining[chunkSize:]
		}
		// copy so later appends never alias the paragraph's backing array
		current = append([]string(nil), remaining...)
	}

	if len(current) > 0 {
		flush(current)
	}

	return chunks, nil
}

// CountWords returns the number of whitespace-separated words in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
