package handlers

import (
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	"github.com/MegaGrindStone/openrouter-chat/internal/session"
	"github.com/MegaGrindStone/openrouter-chat/internal/view"
)

type pageData struct {
	Turns  []view.Turn
	Status models.Status
	Error  string
	// Version orders renders of the same conversation; the page ignores older ones.
	Version uint64

	Models       []string
	CurrentModel string
}

func (m Main) pageData(snap session.Snapshot, currentModel string) pageData {
	data := pageData{
		Turns:        view.Derive(snap.Messages, snap.Status),
		Status:       snap.Status,
		Version:      snap.Version,
		Models:       m.models,
		CurrentModel: currentModel,
	}
	if snap.Err != nil {
		data.Error = snap.Err.Error()
	}
	return data
}

// Busy reports whether the input should be disabled.
func (p pageData) Busy() bool {
	return p.Status.Busy()
}

// HandleHome renders the chat page with the caller's conversation, starting one if needed.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, s := m.session(w, r)

	data := m.pageData(s.Snapshot(), s.Model())
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
