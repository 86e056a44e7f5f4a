package retry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpdf/internal/domain"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}

	assert.Equal(t, 200*time.Millisecond, p.Delay(0))
	assert.Equal(t, 400*time.Millisecond, p.Delay(1))
	assert.Equal(t, 1600*time.Millisecond, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(5))
	assert.Equal(t, 5*time.Second, p.Delay(100))
	assert.Equal(t, 200*time.Millisecond, p.Delay(-1))
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(4), "embed", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, domain.NewTransientError("embed", errors.New("429"))
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestDo_EscalatesToFatalAfterLimit(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), "complete", func(ctx context.Context) (string, error) {
		calls++
		return "", domain.NewTransientError("complete", errors.New("503"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.False(t, domain.IsTransient(err))

	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.Fatal, pe.Kind)
	assert.Equal(t, "complete", pe.Op)
}

func TestDo_FatalIsNotRetried(t *testing.T) {
	calls := 0
	fatal := domain.NewFatalError("embed", errors.New("401 unauthorized"))
	_, err := Do(context.Background(), fastPolicy(5), "embed", func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	_, err := Do(ctx, p, "embed", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, domain.NewTransientError("embed", errors.New("timeout"))
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{}, "embed", func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.NewTransientError("embed", errors.New("boom"))
	})
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
}

func TestDo_LogsThroughPolicyLogger(t *testing.T) {
	var buf bytes.Buffer
	p := fastPolicy(2)
	p.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).With("session", "s-1")

	calls := 0
	_, err := Do(context.Background(), p, "embed", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, domain.NewTransientError("embed", errors.New("503"))
		}
		return 1, nil
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "retrying provider call")
	assert.Contains(t, buf.String(), "session=s-1")
	assert.Contains(t, buf.String(), "op=embed")
}
