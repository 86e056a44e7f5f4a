package document

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"ragpdf/internal/domain"
)

// DefaultContent is used when no document path is configured.
const DefaultContent = "The answer to life is 42 by the way"

// DefaultPath names the built-in document in logs and banners.
const DefaultPath = "<built-in>"

// Loader reads PDF and plain-text documents from the local filesystem.
type Loader struct {
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Default returns the built-in document.
func Default() domain.Document {
	return domain.Document{ID: hashString(DefaultPath), Path: DefaultPath, Content: DefaultContent}
}

// Load extracts the text of the file at path. Files ending in .pdf are parsed as PDF; anything
// else must be UTF-8 text. Every failure is an *domain.ExtractionError.
func (l *Loader) Load(ctx context.Context, path string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	var (
		content string
		err     error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		content, err = readPDF(path)
	} else {
		content, err = readText(path)
	}
	if err != nil {
		return domain.Document{}, &domain.ExtractionError{Path: path, Err: err}
	}
	if strings.TrimSpace(content) == "" {
		l.logger.Warn("document contains no text", "path", path)
	}
	l.logger.Debug("loaded document", "path", path, "bytes", len(content))
	return domain.Document{ID: hashString(path), Path: path, Content: content}, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.New("file is not valid UTF-8 text")
	}
	return string(data), nil
}

// readPDF recovers from panics inside the PDF parser, which it raises on some malformed files.
func readPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}

var _ domain.DocumentSource = (*Loader)(nil)
