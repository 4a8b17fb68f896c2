package handlers

import (
	"context"
	"fmt"
	"html/template"
	"iter"
	"log/slog"
	"net/http"
	"time"

	openrouterchat "github.com/MegaGrindStone/openrouter-chat"
	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	"github.com/MegaGrindStone/openrouter-chat/internal/view"
	"github.com/tmaxmax/go-sse"
)

// LLM represents a large language model interface that provides chat functionality. It accepts a context,
// a sequence of messages and a model id, returning an iterator that yields response fragments and
// potential errors.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message, model string) iter.Seq2[string, error]
}

// Main handles the core functionality of the chat application, managing server-sent events, HTML
// templates, the per-browser conversations and the plain text chat API.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	llm          LLM
	sessions     *sessions
	models       []string
	defaultModel string

	logger *slog.Logger
}

// Options are the settings of Main that come from configuration.
type Options struct {
	// Models are offered in the model selector. The first entry is selected for new conversations when
	// DefaultModel is empty.
	Models []string
	// DefaultModel is used when a request does not name a model.
	DefaultModel string
	// CodeStyle is the chroma style for highlighted code blocks.
	CodeStyle string
	// SessionTTL is how long an idle conversation is kept. Zero means 30 minutes.
	SessionTTL time.Duration
}

const errLoggerKey = "err"

// SSE event types for real-time updates.
var (
	messagesSSEType = sse.Type("messages")
	closeSSEType    = sse.Type("closeChat")
)

// NewMain creates a new Main instance with the provided LLM. It initializes the SSE server and parses the
// required HTML templates from the embedded filesystem. Every SSE client is subscribed to the topic of its
// own conversation, identified by the session cookie.
func NewMain(llm LLM, opts Options, logger *slog.Logger) (Main, error) {
	style := opts.CodeStyle
	if style == "" {
		style = "github"
	}
	md := view.NewMarkdown(style)

	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"markdown": md.Render,
	}).ParseFS(
		openrouterchat.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("failed to parse templates: %w", err)
	}

	logger = logger.With(slog.String("module", "main"))
	ss := newSessions(opts.SessionTTL)
	go ss.sweep(max(ss.ttl/2, time.Millisecond), logger)

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(w http.ResponseWriter, r *http.Request) ([]string, bool) {
				id, ok := ss.idFromRequest(r)
				if !ok {
					http.Error(w, "Unknown session", http.StatusBadRequest)
					return nil, false
				}
				return []string{sessionTopic(id)}, true
			},
		},
		templates:    tmpl,
		llm:          llm,
		sessions:     ss,
		models:       opts.Models,
		defaultModel: opts.DefaultModel,
		logger:       logger,
	}, nil
}

func sessionTopic(id string) string {
	return fmt.Sprintf("session-%s", id)
}

// Shutdown gracefully terminates the Main instance. It stops the idle session sweeper and every
// conversation, broadcasts a close message to all connected clients and waits up to 5 seconds for
// connections to terminate. After the timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	m.sessions.closeAll()

	e := &sse.Message{Type: closeSSEType}
	// An event without data is never dispatched by browsers
	e.AppendData("bye")

	for _, id := range m.sessions.ids() {
		// We ignore the error here since we're shutting down anyway
		_ = m.sseSrv.Publish(e, sessionTopic(id))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

// HandleSSE serves the server-sent events stream of the caller's conversation. The conversation is not
// evicted while the stream is open.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if id, ok := m.sessions.idFromRequest(r); ok {
		release := m.sessions.watch(id)
		defer release()
	}
	m.sseSrv.ServeHTTP(w, r)
}
