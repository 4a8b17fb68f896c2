package main

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	"github.com/MegaGrindStone/openrouter-chat/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	fragments []string
	err       error

	mu     sync.Mutex
	models []string
}

func (f *fakeTransport) Chat(_ context.Context, _ []models.Message, model string) iter.Seq2[string, error] {
	f.mu.Lock()
	f.models = append(f.models, model)
	f.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, frag := range f.fragments {
			if !yield(frag, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

// syncBuffer is written by the session goroutine and read by the test.
type syncBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func TestPrinterStreamsReply(t *testing.T) {
	var out syncBuffer
	p := newPrinter(&out)

	s := session.New(&fakeTransport{fragments: []string{"Hel", "lo", " there"}})
	s.Subscribe(p.update)

	require.NoError(t, s.Submit("Hi"))
	s.Wait()

	assert.Equal(t, "Assistant: Hello there\n", out.String())
}

func TestPrinterShowsErrorAfterPartialReply(t *testing.T) {
	var out syncBuffer
	p := newPrinter(&out)

	s := session.New(&fakeTransport{fragments: []string{"Hel"}, err: errors.New("connection reset")})
	s.Subscribe(p.update)

	require.NoError(t, s.Submit("Hi"))
	s.Wait()

	assert.Equal(t, "Assistant: Hel\nError: connection reset\n", out.String())
}

func TestPrinterSeparatesReplies(t *testing.T) {
	var out syncBuffer
	p := newPrinter(&out)

	s := session.New(&fakeTransport{fragments: []string{"ok"}})
	s.Subscribe(p.update)

	require.NoError(t, s.Submit("one"))
	s.Wait()
	require.NoError(t, s.Submit("two"))
	s.Wait()

	assert.Equal(t, "Assistant: ok\nAssistant: ok\n", out.String())
}
