package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MegaGrindStone/openrouter-chat/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runREPL(t *testing.T, transport *fakeTransport, input string, copyTo func(string) error) string {
	t.Helper()

	var out syncBuffer
	s := session.New(transport, session.WithModel("openai/gpt-4o-mini"))
	t.Cleanup(s.Close)

	r := newREPL(s, &out, copyTo)
	require.NoError(t, r.run(context.Background(), strings.NewReader(input)))

	return out.String()
}

func TestREPLConversation(t *testing.T) {
	transport := &fakeTransport{fragments: []string{"Hello", " there"}}

	out := runREPL(t, transport, "Hi\n/quit\n", nil)

	assert.Contains(t, out, "Assistant: Hello there\n")
	assert.Equal(t, []string{"openai/gpt-4o-mini"}, transport.models)
}

func TestREPLCopy(t *testing.T) {
	var copied string
	copyTo := func(text string) error {
		copied = text
		return nil
	}

	out := runREPL(t, &fakeTransport{fragments: []string{"Hello there"}}, "Hi\n/copy\n", copyTo)

	assert.Equal(t, "You: Hi\n\nAssistant: Hello there", copied)
	assert.Contains(t, out, "Transcript copied.")
}

func TestREPLCopyFailure(t *testing.T) {
	copyTo := func(string) error {
		return errors.New("no clipboard")
	}

	out := runREPL(t, &fakeTransport{}, "/copy\n", copyTo)

	assert.Contains(t, out, "Error: failed to copy transcript: no clipboard")
}

func TestREPLSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.txt")

	runREPL(t, &fakeTransport{fragments: []string{"Hello there"}}, "Hi\n/save "+path+"\n", nil)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "You: Hi\n\nAssistant: Hello there\n", string(b))
}

func TestREPLModelAndClear(t *testing.T) {
	transport := &fakeTransport{fragments: []string{"ok"}}

	out := runREPL(t, transport, "/model anthropic/claude-3.5-sonnet\nHi\n/clear\n/save\n/bogus\n", nil)

	assert.Contains(t, out, "Model: anthropic/claude-3.5-sonnet")
	assert.Contains(t, out, "Conversation cleared.")
	assert.Contains(t, out, "Error: usage: /save FILE")
	assert.Contains(t, out, "Error: unknown command /bogus")
	assert.Equal(t, []string{"anthropic/claude-3.5-sonnet"}, transport.models)
}

func TestREPLRetriesAfterError(t *testing.T) {
	transport := &fakeTransport{err: errors.New("upstream down")}

	out := runREPL(t, transport, "Hi\nagain\n", nil)

	assert.Equal(t, 2, strings.Count(out, "Error: upstream down"))
	assert.Len(t, transport.models, 2)
}
