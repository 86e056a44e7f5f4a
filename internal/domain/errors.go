package domain

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is wrapped by the fatal ProviderError returned once a transient
// failure has been retried the maximum number of times.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ErrNoIndexableContent is returned by a Preparer whose corpus yields nothing to index.
// Ingestion treats it like a document without words.
var ErrNoIndexableContent = errors.New("no indexable terms found in corpus")

// ConfigurationError reports an invalid configuration value. It is always fatal.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// ExtractionError reports a document that could not be read or converted to text.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract text from %q: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// DimensionMismatchError reports a vector whose length differs from the index dimension.
// ChunkIndex is -1 for query vectors.
type DimensionMismatchError struct {
	ChunkIndex int
	Want       int
	Got        int
}

func (e *DimensionMismatchError) Error() string {
	if e.ChunkIndex < 0 {
		return fmt.Sprintf("embedding dimension mismatch for query: want %d, got %d", e.Want, e.Got)
	}
	return fmt.Sprintf("embedding dimension mismatch at chunk %d: want %d, got %d", e.ChunkIndex, e.Want, e.Got)
}

// ProviderErrorKind classifies provider failures for the retry policy.
type ProviderErrorKind int

const (
	Transient ProviderErrorKind = iota
	Fatal
)

func (k ProviderErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "fatal"
}

// ProviderError is returned by embedding and completion providers.
type ProviderError struct {
	Op   string
	Kind ProviderErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a retryable provider failure.
func NewTransientError(op string, err error) *ProviderError {
	return &ProviderError{Op: op, Kind: Transient, Err: err}
}

// NewFatalError wraps err as a non-retryable provider failure.
func NewFatalError(op string, err error) *ProviderError {
	return &ProviderError{Op: op, Kind: Fatal, Err: err}
}

// IsTransient reports whether err is a ProviderError that may be retried.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == Transient
}
