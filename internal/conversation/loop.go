package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragpdf/internal/domain"
	"ragpdf/internal/service"
)

const (
	DefaultExitToken = "exit"
	DefaultPreamble  = "You are a helpful assistant that answers questions based on the given context from the provided PDF document."
	DefaultTopK      = 2
	DefaultBudget    = 1500
)

var (
	ErrEmptyInput = errors.New("empty input")
	ErrNotStarted = errors.New("conversation not started")
	ErrTerminated = errors.New("conversation terminated")
)

// State is the position of the loop in its turn cycle.
type State int

const (
	Idle State = iota
	AwaitingInput
	Retrieving
	Completing
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingInput:
		return "awaiting_input"
	case Retrieving:
		return "retrieving"
	case Completing:
		return "completing"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TurnError reports a turn that failed during retrieval or completion. The history is left
// unchanged and the loop keeps accepting input.
type TurnError struct {
	Phase State
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed while %s: %v", e.Phase, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// Retriever builds the grounding context for a query.
type Retriever interface {
	BuildContext(ctx context.Context, query string, k, budget int) (service.Retrieval, error)
}

// Reply is the outcome of a successful turn.
type Reply struct {
	Text    string
	Sources []domain.SearchResult
}

// Option configures a Loop.
type Option func(*Loop)

func WithPreamble(preamble string) Option {
	return func(l *Loop) { l.preamble = preamble }
}

// WithExitToken sets the input that ends the conversation. Matching ignores case and
// surrounding whitespace.
func WithExitToken(token string) Option {
	return func(l *Loop) { l.exitToken = strings.TrimSpace(token) }
}

// WithRetrieval sets the number of chunks retrieved per turn and the context word budget.
func WithRetrieval(topK, budget int) Option {
	return func(l *Loop) {
		l.topK = topK
		l.budget = budget
	}
}

// WithTurnTimeout bounds retrieval and completion of a single turn. Zero disables it.
func WithTurnTimeout(d time.Duration) Option {
	return func(l *Loop) { l.turnTimeout = d }
}

// WithObserver registers a callback invoked on every state change.
func WithObserver(fn func(from, to State)) Option {
	return func(l *Loop) { l.observer = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// Loop drives the dialogue one turn at a time and owns the conversation history.
// It is not safe for concurrent use.
type Loop struct {
	retriever   Retriever
	completer   domain.CompletionProvider
	preamble    string
	exitToken   string
	topK        int
	budget      int
	turnTimeout time.Duration
	observer    func(from, to State)
	logger      *slog.Logger
	sessionID   string

	state   State
	history []domain.Turn
}

func NewLoop(retriever Retriever, completer domain.CompletionProvider, opts ...Option) *Loop {
	l := &Loop{
		retriever: retriever,
		completer: completer,
		preamble:  DefaultPreamble,
		exitToken: DefaultExitToken,
		topK:      DefaultTopK,
		budget:    DefaultBudget,
		logger:    slog.Default(),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("session", l.sessionID)
	return l
}

// SessionID identifies this conversation in logs.
func (l *Loop) SessionID() string { return l.sessionID }

func (l *Loop) State() State { return l.state }

// ExitToken returns the input that ends the conversation.
func (l *Loop) ExitToken() string { return l.exitToken }

// History returns a copy of the completed turns.
func (l *Loop) History() []domain.Turn { return slices.Clone(l.history) }

// Start moves the loop from Idle to AwaitingInput.
func (l *Loop) Start() error {
	if l.state != Idle {
		return fmt.Errorf("start conversation in state %s", l.state)
	}
	l.transition(AwaitingInput)
	l.logger.Info("conversation started")
	return nil
}

// Stop terminates the loop. It is a no-op once terminated.
func (l *Loop) Stop() {
	if l.state != Terminated {
		l.transition(Terminated)
		l.logger.Info("conversation ended", "turns", len(l.history)/2)
	}
}

// Step processes one line of user input. The exit token terminates the loop and returns an
// empty Reply. Cancellation of ctx terminates the loop and returns the context error; other
// failures are returned as *TurnError and the loop waits for the next input.
func (l *Loop) Step(ctx context.Context, input string) (Reply, error) {
	switch l.state {
	case Idle:
		return Reply{}, ErrNotStarted
	case Terminated:
		return Reply{}, ErrTerminated
	}
	if err := ctx.Err(); err != nil {
		l.Stop()
		return Reply{}, err
	}

	text := strings.TrimSpace(input)
	if strings.EqualFold(text, l.exitToken) {
		l.Stop()
		return Reply{}, nil
	}
	if text == "" {
		return Reply{}, ErrEmptyInput
	}

	turnCtx, cancel := ctx, context.CancelFunc(func() {})
	if l.turnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, l.turnTimeout)
	}
	defer cancel()

	start := time.Now()
	l.transition(Retrieving)
	retrieval, err := l.retriever.BuildContext(turnCtx, text, l.topK, l.budget)
	if err != nil {
		return Reply{}, l.fail(ctx, Retrieving, err)
	}

	l.transition(Completing)
	answer, err := l.completer.Complete(turnCtx, domain.CompletionRequest{
		Preamble: l.preamble,
		Context:  retrieval.Text,
		History:  l.History(),
		Prompt:   text,
	})
	if err != nil {
		return Reply{}, l.fail(ctx, Completing, err)
	}

	l.history = append(l.history,
		domain.Turn{Role: domain.RoleUser, Text: text},
		domain.Turn{Role: domain.RoleAssistant, Text: answer},
	)
	l.transition(AwaitingInput)
	l.logger.Debug("turn completed", "sources", len(retrieval.Results), "duration", time.Since(start))
	return Reply{Text: answer, Sources: retrieval.Results}, nil
}

func (l *Loop) fail(ctx context.Context, phase State, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		l.Stop()
		return ctxErr
	}
	l.logger.Warn("turn failed", "phase", phase.String(), "error", err)
	l.transition(AwaitingInput)
	return &TurnError{Phase: phase, Err: err}
}

func (l *Loop) transition(to State) {
	from := l.state
	l.state = to
	if l.observer != nil {
		l.observer(from, to)
	}
}
