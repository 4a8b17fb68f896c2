package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	"github.com/MegaGrindStone/openrouter-chat/internal/session"
)

const transcriptFileName = "chat-transcript.txt"

// HandleChat submits the user's message to the caller's conversation. It expects a "message" form field
// and an optional "model" field. The reply is streamed to the browser through server-sent events; the
// response body is the messages partial, which already contains the user's message.
//
// A previous error is considered seen once the user sends again, so it is acknowledged first. A submit
// while a reply is still in progress is rejected with 409 Conflict.
func (m Main) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := r.FormValue("message")
	if strings.TrimSpace(msg) == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	id, s := m.session(w, r)

	if s.Status() == models.StatusError {
		s.Acknowledge()
	}
	if model := r.FormValue("model"); model != "" && !s.Status().Busy() {
		s.SetModel(model)
	}

	if err := s.Submit(msg); err != nil {
		m.logger.Warn("Submit rejected",
			slog.String("session", id),
			slog.String(errLoggerKey, err.Error()))
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrNotReady) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	m.renderMessages(w, s)
}

// HandleClear discards the caller's conversation, canceling a reply in progress.
func (m Main) HandleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, s := m.session(w, r)
	s.Clear()

	m.renderMessages(w, s)
}

// HandleAck dismisses the error of the caller's conversation.
func (m Main) HandleAck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, s := m.session(w, r)
	s.Acknowledge()

	m.renderMessages(w, s)
}

// HandleTranscript returns the plain text transcript of the caller's conversation, used by the copy
// button. With download=1 the browser saves it as a file instead. With id it returns the text of that
// single finished message, for the per-reply copy button.
func (m Main) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, s := m.session(w, r)
	msgs := s.Snapshot().Messages

	transcript := models.Transcript(msgs)
	if id := r.URL.Query().Get("id"); id != "" {
		idx := slices.IndexFunc(msgs, func(msg models.Message) bool { return msg.ID == id && !msg.Open })
		if idx < 0 {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		transcript = msgs[idx].Text()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+transcriptFileName+`"`)
	}
	if _, err := w.Write([]byte(transcript)); err != nil {
		m.logger.Error("Failed to write transcript", slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) renderMessages(w http.ResponseWriter, s *session.Session) {
	data := m.pageData(s.Snapshot(), s.Model())
	if err := m.templates.ExecuteTemplate(w, "messages", data); err != nil {
		m.logger.Error("Failed to render messages", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
