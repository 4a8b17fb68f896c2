package view_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	"github.com/MegaGrindStone/openrouter-chat/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conversation(t *testing.T, replyOpen bool) []models.Message {
	t.Helper()
	now := time.Now()
	reply := models.NewAssistantMessage("a1", now)
	require.NoError(t, reply.AppendText("Hello there"))
	if !replyOpen {
		reply.Seal()
	}
	return []models.Message{models.NewUserMessage("u1", "Hi", now), reply}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name           string
		open           bool
		status         models.Status
		wantInProgress bool
	}{
		{"Streaming open turn", true, models.StatusStreaming, true},
		{"Sealed turn", false, models.StatusReady, false},
		{"Sealed after error", false, models.StatusError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := view.Derive(conversation(t, tt.open), tt.status)

			require.Len(t, turns, 2)
			assert.Equal(t, view.Turn{ID: "u1", Role: models.RoleUser, Label: "You", Text: "Hi"}, turns[0])
			assert.Equal(t, "Assistant", turns[1].Label)
			assert.Equal(t, "Hello there", turns[1].Text)
			assert.Equal(t, tt.open, turns[1].Open)
			assert.Equal(t, tt.wantInProgress, turns[1].InProgress)
			assert.False(t, turns[0].InProgress)
		})
	}
}

func TestDeriveEmpty(t *testing.T) {
	assert.Empty(t, view.Derive(nil, models.StatusReady))
}

func TestMarkdownRender(t *testing.T) {
	md := view.NewMarkdown("github")

	out := string(md.Render("**bold** and `code`"))
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, "<code>code</code>")

	out = string(md.Render("<script>alert(1)</script>"))
	assert.NotContains(t, out, "<script>")
}

func TestMarkdownRenderPartialFence(t *testing.T) {
	md := view.NewMarkdown("github")

	out := string(md.Render("Here:\n```go\nfunc main() {"))
	assert.Contains(t, out, "<pre")
	assert.True(t, strings.Contains(out, "main"))
}
