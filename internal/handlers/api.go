package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	"github.com/MegaGrindStone/openrouter-chat/internal/services"
)

const apiFailureBody = "Failed to generate response."

type apiChatRequest struct {
	Messages []json.RawMessage `json:"messages"`
	Model    string            `json:"model"`
}

// HandleAPIChat streams a reply for a caller supplied history as plain text. The history is stateless:
// nothing is kept between requests. Messages may be in either the parts or the content shape; a message
// that fits neither is kept as an empty turn and logged.
//
// A failure before the first byte is written answers 500 with a fixed body. Once streaming has started
// a failure aborts the connection, so clients read an error rather than a complete reply.
func (m Main) HandleAPIChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req apiChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.logger.Error("Failed to decode request", slog.String(errLoggerKey, err.Error()))
		http.Error(w, apiFailureBody, http.StatusInternalServerError)
		return
	}

	msgs, errs := models.ParseMessages(req.Messages)
	for _, err := range errs {
		m.logger.Warn("Degraded inbound message", slog.String(errLoggerKey, err.Error()))
	}

	model := services.ResolveModel(req.Model, m.defaultModel)
	flusher, _ := w.(http.Flusher)

	written := false
	for chunk, err := range m.llm.Chat(r.Context(), msgs, model) {
		if err != nil {
			m.logger.Error("Failed to generate response",
				slog.String("model", model),
				slog.String(errLoggerKey, err.Error()))
			if !written {
				http.Error(w, apiFailureBody, http.StatusInternalServerError)
				return
			}
			// The status is already sent: abort the connection so the client sees a truncated body
			// instead of a clean end of stream.
			panic(http.ErrAbortHandler)
		}
		if chunk == "" {
			continue
		}
		if !written {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			written = true
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			m.logger.Error("Failed to write chunk", slog.String(errLoggerKey, err.Error()))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if !written {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}
