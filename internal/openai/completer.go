package openai

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"ragpdf/internal/domain"
	"ragpdf/internal/retry"
	"ragpdf/internal/tokens"
)

// DefaultCompletionModel is the chat model used when none is configured.
const DefaultCompletionModel = "gpt-3.5-turbo"

// CompleterOption configures a Completer.
type CompleterOption func(*Completer)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CompleterOption {
	return func(c *Completer) { c.temperature = &t }
}

// WithHistoryLimit keeps only the most recent turns that fit in maxTokens as counted by counter.
// A limit of zero sends the full history.
func WithHistoryLimit(maxTokens int, counter tokens.Counter) CompleterOption {
	return func(c *Completer) {
		c.maxHistoryTokens = maxTokens
		c.counter = counter
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CompleterOption {
	return func(c *Completer) { c.logger = logger }
}

// Completer generates chat replies through an OpenAI-compatible API.
type Completer struct {
	conn             conn
	model            string
	temperature      *float64
	maxHistoryTokens int
	counter          tokens.Counter
	logger           *slog.Logger
}

// NewCompleter creates a chat completion client. The API key must be set.
func NewCompleter(cfg Config, opts ...CompleterOption) (*Completer, error) {
	c, err := newConn(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultCompletionModel
	}
	completer := &Completer{conn: c, model: model, logger: slog.Default()}
	for _, opt := range opts {
		opt(completer)
	}
	if completer.conn.policy.Logger == nil {
		completer.conn.policy.Logger = completer.logger
	}
	if completer.counter == nil {
		completer.counter = tokens.WordCounter{}
	}
	return completer, nil
}

// Complete sends the preamble, retrieved context, history and new prompt as one chat request.
func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	history := req.History
	if c.maxHistoryTokens > 0 {
		history = trimHistory(history, c.maxHistoryTokens, c.counter)
		if dropped := len(req.History) - len(history); dropped > 0 {
			c.logger.Debug("trimmed conversation history", "dropped_turns", dropped)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: buildMessages(req.Preamble, req.Context, history, req.Prompt),
	}
	if c.temperature != nil {
		params.Temperature = openai.Float(*c.temperature)
	}

	return retry.Do(ctx, c.conn.policy, "complete", func(ctx context.Context) (string, error) {
		completion, err := c.conn.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", classify("complete", err)
		}
		if len(completion.Choices) == 0 {
			return "", domain.NewFatalError("complete", errors.New("no completion choices returned"))
		}
		return completion.Choices[0].Message.Content, nil
	})
}

// Close releases idle connections.
func (c *Completer) Close() error {
	c.conn.close()
	return nil
}

func buildMessages(preamble, excerpts string, history []domain.Turn, prompt string) []openai.ChatCompletionMessageParamUnion {
	var system strings.Builder
	system.WriteString(preamble)
	if excerpts != "" {
		if system.Len() > 0 {
			system.WriteString("\n\n")
		}
		system.WriteString("Relevant excerpts from the document:\n\n")
		system.WriteString(excerpts)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if system.Len() > 0 {
		messages = append(messages, openai.SystemMessage(system.String()))
	}
	for _, turn := range history {
		switch turn.Role {
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		default:
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}
	return append(messages, openai.UserMessage(prompt))
}

// trimHistory keeps the longest suffix of history within maxTokens. The kept history never
// starts with an assistant turn.
func trimHistory(history []domain.Turn, maxTokens int, counter tokens.Counter) []domain.Turn {
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		total += counter.Count(history[i].Text)
		if total > maxTokens {
			break
		}
		start = i
	}
	for start < len(history) && history[start].Role == domain.RoleAssistant {
		start++
	}
	return history[start:]
}

var _ domain.CompletionProvider = (*Completer)(nil)
