package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ragpdf/internal/chunker"
	"ragpdf/internal/domain"
	"ragpdf/internal/retry"
)

const (
	EmbedderOpenAI = "openai"
	EmbedderTFIDF  = "tfidf"

	UITUI   = "tui"
	UIPlain = "plain"
)

// ChunkerConfig configures how documents are split into word windows.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	Workers     int    `yaml:"workers"`
	// RequestsPerSecond throttles embedding calls during index construction; 0 is unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string               `yaml:"type"`
	OpenAI OpenAIEmbedderConfig `yaml:"openai"`
}

// CompletionConfig configures the chat model.
type CompletionConfig struct {
	BaseURL     string   `yaml:"base_url"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Model       string   `yaml:"model"`
	TimeoutSecs int      `yaml:"timeout_secs"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	// MaxHistoryTokens bounds the history sent with each turn; 0 sends all of it.
	MaxHistoryTokens int `yaml:"max_history_tokens"`
}

// RetrievalConfig controls how much context each turn receives.
type RetrievalConfig struct {
	TopK            int  `yaml:"top_k"`
	TokenBudget     int  `yaml:"token_budget"`
	StrictGrounding bool `yaml:"strict_grounding"`
	QueryCacheSize  int  `yaml:"query_cache_size"`
}

// RetryConfig is the backoff policy for transient provider failures.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
}

// ConversationConfig configures the dialogue loop and its front end.
type ConversationConfig struct {
	Preamble        string `yaml:"preamble"`
	ExitToken       string `yaml:"exit_token"`
	TurnTimeoutSecs int    `yaml:"turn_timeout_secs"`
	UI              string `yaml:"ui"`
}

// SummarizerConfig configures the document overview.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Document     string             `yaml:"document"`
	Verbose      bool               `yaml:"verbose"`
	Chunker      ChunkerConfig      `yaml:"chunker"`
	Embedder     EmbedderConfig     `yaml:"embedder"`
	Completion   CompletionConfig   `yaml:"completion"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Retry        RetryConfig        `yaml:"retry"`
	Conversation ConversationConfig `yaml:"conversation"`
	Summarizer   SummarizerConfig   `yaml:"summarizer"`
}

// Load reads a config from a specified path. Keys missing from the file keep their default
// values. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragpdf/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragpdf/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragpdf", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Chunker: ChunkerConfig{Size: 500, Overlap: 50},
		Embedder: EmbedderConfig{
			Type: EmbedderOpenAI,
			OpenAI: OpenAIEmbedderConfig{
				BaseURL:     "https://api.openai.com/v1",
				APIKeyEnv:   "OPENAI_API_KEY",
				Model:       "text-embedding-ada-002",
				TimeoutSecs: 30,
				BatchSize:   32,
				Workers:     4,
			},
		},
		Completion: CompletionConfig{
			BaseURL:     "https://api.openai.com/v1",
			APIKeyEnv:   "OPENAI_API_KEY",
			Model:       "gpt-3.5-turbo",
			TimeoutSecs: 60,
		},
		Retrieval: RetrievalConfig{TopK: 2, TokenBudget: 1500, QueryCacheSize: 128},
		Retry:     RetryConfig{MaxAttempts: 4, BaseDelayMs: 200, MaxDelayMs: 5000},
		Conversation: ConversationConfig{
			Preamble:  "You are a helpful assistant that answers questions based on the given context from the provided PDF document.",
			ExitToken: "exit",
			UI:        UITUI,
		},
		Summarizer: SummarizerConfig{MaxSentences: 3},
	}
}

// applyConfigDefaults restores values a file cleared explicitly but that cannot be empty.
func applyConfigDefaults(cfg *AppConfig) {
	def := Default()
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.OpenAI.BaseURL == "" {
		cfg.Embedder.OpenAI.BaseURL = def.Embedder.OpenAI.BaseURL
	}
	if cfg.Embedder.OpenAI.APIKeyEnv == "" {
		cfg.Embedder.OpenAI.APIKeyEnv = def.Embedder.OpenAI.APIKeyEnv
	}
	if cfg.Embedder.OpenAI.Model == "" {
		cfg.Embedder.OpenAI.Model = def.Embedder.OpenAI.Model
	}
	if cfg.Completion.BaseURL == "" {
		cfg.Completion.BaseURL = def.Completion.BaseURL
	}
	if cfg.Completion.APIKeyEnv == "" {
		cfg.Completion.APIKeyEnv = def.Completion.APIKeyEnv
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = def.Completion.Model
	}
	if strings.TrimSpace(cfg.Conversation.ExitToken) == "" {
		cfg.Conversation.ExitToken = def.Conversation.ExitToken
	}
	if cfg.Conversation.UI == "" {
		cfg.Conversation.UI = def.Conversation.UI
	}
}

// Validate rejects values that would make the pipeline misbehave. Every failure is a
// *domain.ConfigurationError.
func (c *AppConfig) Validate() error {
	if err := chunker.Validate(c.Chunker.Size, c.Chunker.Overlap); err != nil {
		return err
	}
	switch c.Embedder.Type {
	case EmbedderOpenAI, EmbedderTFIDF:
	default:
		return invalid("embedder.type", fmt.Sprintf("unknown embedder %q", c.Embedder.Type))
	}
	switch c.Conversation.UI {
	case UITUI, UIPlain:
	default:
		return invalid("conversation.ui", fmt.Sprintf("unknown ui %q", c.Conversation.UI))
	}

	if c.Retrieval.TokenBudget > 0 && c.Retrieval.TokenBudget < c.Chunker.Size {
		// a full chunk must fit in the budget
		return invalid("retrieval.token_budget", fmt.Sprintf("must be 0 or at least chunker.size (%d)", c.Chunker.Size))
	}

	checks := []struct {
		field string
		ok    bool
	}{
		{"retrieval.top_k", c.Retrieval.TopK > 0},
		{"retrieval.query_cache_size", c.Retrieval.QueryCacheSize >= 0},
		{"embedder.openai.batch_size", c.Embedder.OpenAI.BatchSize >= 0},
		{"embedder.openai.workers", c.Embedder.OpenAI.Workers >= 0},
		{"embedder.openai.timeout_secs", c.Embedder.OpenAI.TimeoutSecs >= 0},
		{"embedder.openai.requests_per_second", c.Embedder.OpenAI.RequestsPerSecond >= 0},
		{"completion.timeout_secs", c.Completion.TimeoutSecs >= 0},
		{"completion.max_history_tokens", c.Completion.MaxHistoryTokens >= 0},
		{"retry.max_attempts", c.Retry.MaxAttempts > 0},
		{"retry.base_delay_ms", c.Retry.BaseDelayMs >= 0},
		{"retry.max_delay_ms", c.Retry.MaxDelayMs >= 0},
		{"conversation.turn_timeout_secs", c.Conversation.TurnTimeoutSecs >= 0},
	}
	for _, check := range checks {
		if !check.ok {
			return invalid(check.field, "value out of range")
		}
	}
	return nil
}

// RetryPolicy converts the retry section to a retry.Policy.
func (c *AppConfig) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(c.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
	}
}

func invalid(field, reason string) error {
	return &domain.ConfigurationError{Field: field, Reason: reason}
}
