package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"ragpdf/internal/domain"
)

// WordChunker splits text into fixed-size word windows that overlap by a fixed number of words.
type WordChunker struct {
	size    int
	overlap int
}

// NewWordChunker validates the window parameters and returns a chunker.
func NewWordChunker(size, overlap int) (*WordChunker, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	return &WordChunker{size: size, overlap: overlap}, nil
}

// Chunk splits the document content.
func (c *WordChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	return Chunk(document.Content, c.size, c.overlap)
}

// Validate checks that a window of size words can advance by size-overlap words.
func Validate(size, overlap int) error {
	if size <= 0 {
		return &domain.ConfigurationError{Field: "chunker.size", Reason: "must be greater than zero"}
	}
	if overlap < 0 {
		return &domain.ConfigurationError{Field: "chunker.overlap", Reason: "must not be negative"}
	}
	if overlap >= size {
		return &domain.ConfigurationError{Field: "chunker.overlap", Reason: "must be smaller than chunker.size"}
	}
	return nil
}

// Chunk tokenizes text on whitespace and slides a window of size words with step size-overlap.
// The last chunk may be shorter than size. Text without words yields no chunks.
func Chunk(text string, size, overlap int) ([]domain.Chunk, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	words, offsets := splitWords(text)
	if len(words) == 0 {
		return nil, nil
	}
	step := size - overlap
	var chunks []domain.Chunk
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, domain.Chunk{
			Index:        len(chunks),
			Text:         strings.Join(words[start:end], " "),
			SourceOffset: offsets[start],
		})
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// splitWords behaves like strings.Fields but also returns the byte offset of every word.
func splitWords(text string) ([]string, []int) {
	var words []string
	var offsets []int
	start := -1
	for i := 0; i < len(text); {
		r, width := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, text[start:i])
				offsets = append(offsets, start)
				start = -1
			}
		} else if start < 0 {
			start = i
		}
		i += width
	}
	if start >= 0 {
		words = append(words, text[start:])
		offsets = append(offsets, start)
	}
	return words, offsets
}
