package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"ragpdf/internal/domain"
	"ragpdf/internal/retry"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultTimeout bounds a single HTTP call.
	DefaultTimeout = 60 * time.Second
)

// ErrAPIKeyNotSet is returned when a client is created without a credential.
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// Config configures an OpenAI-compatible client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds each HTTP call; a timed out call counts as a transient failure.
	Timeout time.Duration
	Retry   retry.Policy
	// Logger is used for retry lines when Retry carries no logger.
	Logger *slog.Logger
}

// conn bundles the SDK client with the HTTP client whose idle connections Close releases.
type conn struct {
	client openai.Client
	http   *http.Client
	policy retry.Policy
}

func newConn(cfg Config) (conn, error) {
	if cfg.APIKey == "" {
		return conn{}, ErrAPIKeyNotSet
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	if policy.Logger == nil {
		policy.Logger = cfg.Logger
	}
	httpClient := &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithRequestTimeout(timeout),
		// retries are handled by retry.Do so that the attempt limit is ours
		option.WithMaxRetries(0),
	)
	return conn{client: client, http: httpClient, policy: policy}, nil
}

func (c conn) close() {
	c.http.CloseIdleConnections()
}

// classify maps SDK and transport errors onto transient or fatal provider errors.
// Caller cancellation is passed through untouched.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusRequestTimeout, code == http.StatusConflict,
			code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
			return domain.NewTransientError(op, fmt.Errorf("status %d: %w", code, err))
		default:
			return domain.NewFatalError(op, fmt.Errorf("status %d: %w", code, err))
		}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return domain.NewTransientError(op, err)
	}
	return domain.NewFatalError(op, err)
}
