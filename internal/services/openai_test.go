package services_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MegaGrindStone/openrouter-chat/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIChunk(text string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":%q}}]}`, text)
}

func TestOpenAIChat(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		sseHandler(t, openAIChunk("Hel"), openAIChunk(""), openAIChunk("lo"), "[DONE]")(w, r)
	}))
	defer srv.Close()

	o := services.NewOpenAI(services.Config{APIKey: "k", BaseURL: srv.URL + "/v1"}, discardLogger())
	frags, err := collect(o.Chat(context.Background(), userHistory("hi"), "gpt-4o-mini"))

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, frags)
	assert.Equal(t, "/v1/chat/completions", gotPath)
}

func TestOpenAIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	o := services.NewOpenAI(services.Config{APIKey: "k", BaseURL: srv.URL}, discardLogger())
	_, err := collect(o.Chat(context.Background(), userHistory("hi"), "m"))

	requireTransportError(t, err, http.StatusTooManyRequests)
}
