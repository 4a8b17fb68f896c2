package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	"github.com/MegaGrindStone/openrouter-chat/internal/session"
)

const helpText = `Commands:
  /copy        copy the transcript to the clipboard
  /save FILE   write the transcript to FILE
  /clear       start over
  /model [ID]  show or change the model
  /quit        exit
`

type repl struct {
	s      *session.Session
	out    *printer
	copyTo func(string) error
}

func newREPL(s *session.Session, out io.Writer, copyTo func(string) error) *repl {
	p := newPrinter(out)
	s.Subscribe(p.update)
	return &repl{s: s, out: p, copyTo: copyTo}
}

// run reads lines from in until EOF, /quit or ctx is done. Each plain line is sent as a message and
// run waits for the complete reply before reading the next one.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	stop := closeOnDone(ctx, r.s)
	defer stop()

	lines, scanErr := scanLines(in)

	fmt.Fprint(r.out, "Type a message, /help for commands.\n")
	for {
		fmt.Fprint(r.out, "> ")

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(r.out)
			return <-scanErr
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		quit, err := r.handle(line)
		if err != nil {
			if errors.Is(err, session.ErrClosed) {
				return nil
			}
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// scanLines feeds the lines of in to a channel so reading can be abandoned. The error channel receives
// the scanner error once lines is closed.
func scanLines(in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
		for sc.Scan() {
			lines <- sc.Text()
		}
		errs <- sc.Err()
	}()
	return lines, errs
}

func (r *repl) handle(line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, r.send(line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprint(r.out, helpText)
	case "/clear":
		r.s.Clear()
		fmt.Fprintln(r.out, "Conversation cleared.")
	case "/model":
		if arg != "" {
			r.s.SetModel(arg)
		}
		model := r.s.Model()
		if model == "" {
			model = "server default"
		}
		fmt.Fprintf(r.out, "Model: %s\n", model)
	case "/copy":
		if err := r.copyTo(r.transcript()); err != nil {
			return false, fmt.Errorf("failed to copy transcript: %w", err)
		}
		fmt.Fprintln(r.out, "Transcript copied.")
	case "/save":
		if arg == "" {
			return false, errors.New("usage: /save FILE")
		}
		if err := os.WriteFile(arg, []byte(r.transcript()+"\n"), 0o600); err != nil {
			return false, fmt.Errorf("failed to save transcript: %w", err)
		}
		fmt.Fprintf(r.out, "Transcript saved to %s.\n", arg)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return false, nil
}

func (r *repl) send(text string) error {
	if r.s.Status() == models.StatusError {
		r.s.Acknowledge()
	}
	if err := r.s.Submit(text); err != nil {
		return err
	}
	r.s.Wait()
	return nil
}

func (r *repl) transcript() string {
	return models.Transcript(r.s.Snapshot().Messages)
}
