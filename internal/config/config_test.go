package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpdf/internal/domain"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
document: report.pdf
chunker:
  size: 200
embedder:
  type: tfidf
  openai:
    workers: 8
retrieval:
  top_k: 4
conversation:
  exit_token: ""
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", cfg.Document)
	assert.Equal(t, 200, cfg.Chunker.Size)
	assert.Equal(t, 50, cfg.Chunker.Overlap)
	assert.Equal(t, EmbedderTFIDF, cfg.Embedder.Type)
	assert.Equal(t, 8, cfg.Embedder.OpenAI.Workers)
	assert.Equal(t, 32, cfg.Embedder.OpenAI.BatchSize)
	assert.Equal(t, "text-embedding-ada-002", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, 1500, cfg.Retrieval.TokenBudget)
	assert.Equal(t, "exit", cfg.Conversation.ExitToken)
	assert.Nil(t, cfg.Completion.Temperature)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [1, 2"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	temp := 0.3
	cfg.Completion.Temperature = &temp

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"zero chunk size", func(c *AppConfig) { c.Chunker.Size = 0 }, "chunker.size"},
		{"overlap equals size", func(c *AppConfig) { c.Chunker.Overlap = c.Chunker.Size }, "chunker.overlap"},
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "bert" }, "embedder.type"},
		{"unknown ui", func(c *AppConfig) { c.Conversation.UI = "web" }, "conversation.ui"},
		{"zero top k", func(c *AppConfig) { c.Retrieval.TopK = 0 }, "retrieval.top_k"},
		{"negative workers", func(c *AppConfig) { c.Embedder.OpenAI.Workers = -1 }, "embedder.openai.workers"},
		{"no retry attempts", func(c *AppConfig) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"chunk larger than budget", func(c *AppConfig) { c.Chunker.Size = 2000 }, "retrieval.token_budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, cfg.Validate(), &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	p := Default().RetryPolicy()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, p.BaseDelay)
	assert.Equal(t, 5*time.Second, p.MaxDelay)
}

func TestValidate_TokenBudget(t *testing.T) {
	cfg := Default()
	cfg.Chunker.Size = 2000
	cfg.Retrieval.TokenBudget = 0
	assert.NoError(t, cfg.Validate(), "zero budget is unbounded")

	cfg.Retrieval.TokenBudget = 2000
	assert.NoError(t, cfg.Validate())

	cfg.Retrieval.TokenBudget = 1999
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, "retrieval.token_budget", cfgErr.Field)
}
