package document

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpdf/internal/domain"
)

func TestLoader_TextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha beta\ngamma"), 0o644))

	doc, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta\ngamma", doc.Content)
	assert.Equal(t, path, doc.Path)
	assert.Len(t, doc.ID, 16)
}

func TestLoader_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pdf")

	_, err := NewLoader().Load(context.Background(), path)
	var extErr *domain.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, path, extErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_InvalidPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.PDF")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf at all"), 0o644))

	_, err := NewLoader().Load(context.Background(), path)
	var extErr *domain.ExtractionError
	assert.ErrorAs(t, err, &extErr)
}

func TestLoader_BinaryTextRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00}, 0o644))

	_, err := NewLoader().Load(context.Background(), path)
	var extErr *domain.ExtractionError
	assert.ErrorAs(t, err, &extErr)
}

func TestLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader().Load(ctx, "whatever.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefault(t *testing.T) {
	doc := Default()
	assert.Equal(t, DefaultContent, doc.Content)
	assert.Equal(t, DefaultPath, doc.Path)
	assert.NotEmpty(t, doc.ID)
}
