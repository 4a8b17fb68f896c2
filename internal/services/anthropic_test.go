package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MegaGrindStone/openrouter-chat/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anthropicHandler(t *testing.T, events [][2]string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev[0], ev[1])
			w.(http.Flusher).Flush()
		}
	}
}

func TestAnthropicChat(t *testing.T) {
	var gotBody map[string]any
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		anthropicHandler(t, [][2]string{
			{"message_start", `{"type":"message_start"}`},
			{"content_block_delta", `{"type":"content_block_delta","delta":{"text":"Hel"}}`},
			{"ping", `{"type":"ping"}`},
			{"content_block_delta", `{"type":"content_block_delta","delta":{"text":"lo"}}`},
			{"message_stop", `{"type":"message_stop"}`},
			{"content_block_delta", `{"type":"content_block_delta","delta":{"text":"late"}}`},
		})(w, r)
	}))
	defer srv.Close()

	a := services.NewAnthropic(services.Config{
		APIKey:       "secret",
		BaseURL:      srv.URL,
		SystemPrompt: "persona",
		MaxTokens:    512,
	}, discardLogger())

	frags, err := collect(a.Chat(context.Background(), userHistory("hi"), "claude-3-5-haiku-latest"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, frags)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "persona", gotBody["system"])
	assert.EqualValues(t, 512, gotBody["max_tokens"])
	assert.Equal(t, []any{
		map[string]any{"role": "user", "content": "hi"},
	}, gotBody["messages"])
}

func TestAnthropicErrorEvent(t *testing.T) {
	srv := httptest.NewServer(anthropicHandler(t, [][2]string{
		{"content_block_delta", `{"type":"content_block_delta","delta":{"text":"Hel"}}`},
		{"error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`},
	}))
	defer srv.Close()

	a := services.NewAnthropic(services.Config{APIKey: "k", BaseURL: srv.URL, MaxTokens: 10}, discardLogger())
	frags, err := collect(a.Chat(context.Background(), userHistory("hi"), "m"))

	te := requireTransportError(t, err, http.StatusBadGateway)
	assert.Contains(t, te.Message, "Overloaded")
	assert.Equal(t, []string{"Hel"}, frags)
}

func TestAnthropicStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	a := services.NewAnthropic(services.Config{APIKey: "k", BaseURL: srv.URL, MaxTokens: 10}, discardLogger())
	_, err := collect(a.Chat(context.Background(), userHistory("hi"), "m"))

	te := requireTransportError(t, err, http.StatusForbidden)
	assert.Contains(t, te.Message, "nope")
}
