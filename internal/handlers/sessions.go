package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/openrouter-chat/internal/services"
	"github.com/MegaGrindStone/openrouter-chat/internal/session"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

const (
	sessionCookieName = "chat_session"
	// defaultSessionTTL is how long a conversation survives without requests or an open event stream.
	defaultSessionTTL = 30 * time.Minute
)

type sessionEntry struct {
	s        *session.Session
	lastSeen time.Time
	// streams counts the open SSE connections; a watched conversation is never evicted.
	streams int
}

// sessions holds one conversation per browser, keyed by the session cookie. Conversations live in
// memory and are evicted once idle for longer than ttl.
type sessions struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	byID map[string]*sessionEntry

	stop     chan struct{}
	stopOnce sync.Once
}

func newSessions(ttl time.Duration) *sessions {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &sessions{
		ttl:  ttl,
		now:  time.Now,
		byID: make(map[string]*sessionEntry),
		stop: make(chan struct{}),
	}
}

// idFromRequest returns the session id of the request cookie, reporting whether it is still known.
func (ss *sessions) idFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", false
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	_, ok := ss.byID[c.Value]
	return c.Value, ok
}

// get returns the session and marks it as used.
func (ss *sessions) get(id string) (*session.Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	e, ok := ss.byID[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = ss.now()
	return e.s, true
}

func (ss *sessions) add(id string, s *session.Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.byID[id] = &sessionEntry{s: s, lastSeen: ss.now()}
}

// watch registers an open event stream on the session and returns the function that releases it.
func (ss *sessions) watch(id string) func() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	e, ok := ss.byID[id]
	if !ok {
		return func() {}
	}
	e.streams++
	e.lastSeen = ss.now()

	return func() {
		ss.mu.Lock()
		defer ss.mu.Unlock()
		e.streams--
		e.lastSeen = ss.now()
	}
}

func (ss *sessions) ids() []string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ids := make([]string, 0, len(ss.byID))
	for id := range ss.byID {
		ids = append(ids, id)
	}
	return ids
}

// evictIdle closes and forgets the sessions idle for longer than the ttl. Sessions with an open event
// stream or a reply in progress are kept.
func (ss *sessions) evictIdle() []string {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	cutoff := ss.now().Add(-ss.ttl)
	var evicted []string
	for id, e := range ss.byID {
		if e.streams > 0 || e.lastSeen.After(cutoff) || e.s.Status().Busy() {
			continue
		}
		e.s.Close()
		delete(ss.byID, id)
		evicted = append(evicted, id)
	}
	return evicted
}

// sweep evicts idle sessions every interval until shutdown.
func (ss *sessions) sweep(interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ss.stop:
			return
		case <-ticker.C:
			for _, id := range ss.evictIdle() {
				logger.Debug("Evicted idle session", slog.String("session", id))
			}
		}
	}
}

func (ss *sessions) closeAll() {
	ss.stopOnce.Do(func() { close(ss.stop) })

	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, e := range ss.byID {
		e.s.Close()
	}
}

// session returns the caller's conversation, starting a new one and setting the cookie when the request
// carries no known session.
func (m Main) session(w http.ResponseWriter, r *http.Request) (string, *session.Session) {
	if id, ok := m.sessions.idFromRequest(r); ok {
		if s, ok := m.sessions.get(id); ok {
			return id, s
		}
	}

	id := uuid.NewString()
	s := session.New(m.llm,
		session.WithModel(m.initialModel()),
		session.WithLogger(m.logger.With(slog.String("session", id))),
	)
	s.Subscribe(m.publisher(id))
	m.sessions.add(id, s)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	m.logger.Debug("New session", slog.String("session", id))

	return id, s
}

func (m Main) initialModel() string {
	if m.defaultModel == "" && len(m.models) > 0 {
		return m.models[0]
	}
	return services.ResolveModel("", m.defaultModel)
}

// publisher re-renders the conversation on every state change and pushes it to the browser.
func (m Main) publisher(id string) session.Listener {
	return func(snap session.Snapshot) {
		var sb strings.Builder
		if err := m.templates.ExecuteTemplate(&sb, "messages", m.pageData(snap, "")); err != nil {
			m.logger.Error("Failed to render messages",
				slog.String("session", id),
				slog.String(errLoggerKey, err.Error()))
			return
		}

		msg := sse.Message{
			Type: messagesSSEType,
		}
		msg.AppendData(sb.String())
		if err := m.sseSrv.Publish(&msg, sessionTopic(id)); err != nil {
			m.logger.Error("Failed to publish messages",
				slog.String("session", id),
				slog.String(errLoggerKey, err.Error()))
		}
	}
}
