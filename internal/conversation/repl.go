package conversation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"ragpdf/internal/domain"
)

const prompt = "> "

// Run reads user input line by line from in and writes replies to out until the exit token,
// end of input or cancellation of ctx. Turn failures are printed as a single line and the
// conversation continues. Cancellation returns the context error.
func (l *Loop) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if l.state == Idle {
		if err := l.Start(); err != nil {
			return err
		}
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	for l.state != Terminated {
		fmt.Fprint(out, prompt)

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			l.Stop()
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			l.Stop()
			if err := <-readErr; err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		}

		reply, err := l.Step(ctx, line)
		switch {
		case errors.Is(err, ErrEmptyInput):
			continue
		case err != nil && ctx.Err() != nil:
			fmt.Fprintln(out)
			return ctx.Err()
		case err != nil:
			fmt.Fprintf(out, "error: %s\n", singleLine(err.Error()))
			continue
		}
		if l.state == Terminated {
			break
		}
		fmt.Fprintf(out, "%s\n", reply.Text)
		if s := FormatSources(reply.Sources); s != "" {
			fmt.Fprintf(out, "%s\n", s)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// FormatSources renders the chunks that grounded a reply, such as "sources: #3 (0.91), #0 (0.42)".
func FormatSources(results []domain.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("#%d (%.2f)", r.Chunk.Index, r.Score)
	}
	return "sources: " + strings.Join(parts, ", ")
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
