package tokens

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Counter measures text length in model tokens.
type Counter interface {
	Count(text string) int
}

// WordCounter counts whitespace-separated words.
type WordCounter struct{}

func (WordCounter) Count(text string) int { return len(strings.Fields(text)) }

// TiktokenCounter counts BPE tokens the way OpenAI models do.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter uses the encoding of the given model, falling back to cl100k_base.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
		}
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

func (tc *TiktokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// ForModel returns a tiktoken counter for model, or a WordCounter when the encoding cannot be
// loaded (tiktoken fetches its ranks on first use).
func ForModel(model string, logger *slog.Logger) Counter {
	tc, err := NewTiktokenCounter(model)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("token counting falls back to word counts", "model", model, "error", err)
		return WordCounter{}
	}
	return tc
}
