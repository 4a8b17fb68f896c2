// Package session assembles a conversation out of user submits and streamed assistant replies. A
// Session is the only writer of its messages and status; readers get snapshots.
package session

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	"github.com/google/uuid"
)

// Transport sends the conversation history to a model and streams the reply back as text fragments.
// Canceling ctx must end the sequence promptly.
type Transport interface {
	Chat(ctx context.Context, messages []models.Message, model string) iter.Seq2[string, error]
}

// Snapshot is a consistent copy of a session's state. Messages share no memory with the session.
type Snapshot struct {
	Messages []models.Message
	Status   models.Status
	// Err is the failure behind StatusError, nil otherwise.
	Err error
	// Version increases with every mutation.
	Version uint64
}

// Listener receives a snapshot after every mutation, in mutation order. Listeners run while the session
// is locked: they must return quickly and must not call back into the session.
type Listener func(Snapshot)

// Session is a single conversation and its request lifecycle. The zero value is not usable; create one
// with New.
type Session struct {
	transport Transport
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time

	mu       sync.Mutex
	model    string
	messages []models.Message
	status   models.Status
	err      error
	version  uint64
	// open is the index of the assistant message receiving fragments, -1 if none.
	open int
	// turn identifies the current stream. Fragments from any other turn are dropped.
	turn   uint64
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	listeners    map[int]Listener
	nextListener int
}

// Option configures a Session.
type Option func(*Session)

// WithModel sets the model used for submits until SetModel changes it.
func WithModel(model string) Option {
	return func(s *Session) {
		s.model = model
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithIDGenerator replaces the uuid based message id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Session) {
		s.newID = newID
	}
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New creates an empty session in StatusReady that sends its turns through transport.
func New(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		logger:    slog.Default(),
		newID:     uuid.NewString,
		now:       time.Now,
		status:    models.StatusReady,
		open:      -1,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("module", "session"))
	return s
}

// Subscribe registers l for state change notifications and returns a function that removes it.
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Status returns the current request status.
func (s *Session) Status() models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Model returns the model the next submit will use.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel changes the model for subsequent submits. A stream in flight keeps its model.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// Submit appends a user message and starts streaming the assistant reply in the background. The user
// message is part of the conversation, and listeners have seen it, before Submit returns. Submit only
// succeeds in StatusReady; it is rejected, not queued, otherwise.
func (s *Session) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.status != models.StatusReady {
		return ErrNotReady
	}

	s.messages = append(s.messages, models.NewUserMessage(s.newID(), text, s.now()))
	s.status = models.StatusSubmitted
	s.turn++

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	history := cloneMessages(s.messages)
	s.emit()

	s.logger.Debug("Submit", slog.Uint64("turn", s.turn), slog.String("model", s.model))

	go s.stream(ctx, cancel, done, s.turn, history, s.model)

	return nil
}

func (s *Session) stream(
	ctx context.Context,
	cancel context.CancelFunc,
	done chan struct{},
	turn uint64,
	history []models.Message,
	model string,
) {
	defer close(done)
	defer cancel()

	for frag, err := range s.transport.Chat(ctx, history, model) {
		if err != nil {
			s.fail(turn, err)
			return
		}
		if !s.apply(turn, frag) {
			// Breaking out of the range stops the transport, which releases its connection.
			return
		}
	}
	s.complete(turn)
}

// apply folds one fragment into the open assistant message. It reports false once the turn is stale.
func (s *Session) apply(turn uint64, frag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn != s.turn {
		return false
	}

	if s.open < 0 {
		s.messages = append(s.messages, models.NewAssistantMessage(s.newID(), s.now()))
		s.open = len(s.messages) - 1
		s.status = models.StatusStreaming
	}
	if err := s.messages[s.open].AppendText(frag); err != nil {
		// Unreachable while open tracks the only unsealed message.
		s.logger.Error("Failed to append fragment", slog.String("err", err.Error()))
		return false
	}
	s.emit()

	return true
}

func (s *Session) complete(turn uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn != s.turn {
		return
	}

	if s.open < 0 {
		// The reply closed without a single fragment: keep it as an empty turn.
		msg := models.NewAssistantMessage(s.newID(), s.now())
		msg.Seal()
		s.messages = append(s.messages, msg)
	}
	s.sealOpen()
	s.status = models.StatusReady
	s.cancel = nil
	s.emit()
}

func (s *Session) fail(turn uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn != s.turn {
		return
	}

	s.logger.Warn("Stream failed", slog.Uint64("turn", turn), slog.String("err", err.Error()))

	s.sealOpen()
	s.status = models.StatusError
	s.err = err
	s.cancel = nil
	s.emit()
}

// Acknowledge returns a session in StatusError to StatusReady. It does nothing in any other status.
func (s *Session) Acknowledge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != models.StatusError {
		return
	}
	s.status = models.StatusReady
	s.err = nil
	s.emit()
}

// Clear discards every message and resets the status to StatusReady. A stream in flight is canceled
// first and none of its remaining fragments are applied.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stop()
	s.messages = nil
	s.status = models.StatusReady
	s.err = nil
	s.emit()
}

// Wait blocks until the stream started by the last submit, if any, has returned.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Close cancels a stream in flight and detaches all listeners. Further submits fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stop()
	s.closed = true
	clear(s.listeners)
}

// stop cancels the current stream and invalidates its turn. The caller holds s.mu.
func (s *Session) stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.turn++
	s.sealOpen()
}

// sealOpen seals the open assistant message, if any. The caller holds s.mu.
func (s *Session) sealOpen() {
	if s.open < 0 {
		return
	}
	if s.open < len(s.messages) {
		s.messages[s.open].Seal()
	}
	s.open = -1
}

// emit notifies listeners. The caller holds s.mu.
func (s *Session) emit() {
	s.version++
	if len(s.listeners) == 0 {
		return
	}
	snap := s.snapshot()
	for _, l := range s.listeners {
		l(snap)
	}
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		Messages: cloneMessages(s.messages),
		Status:   s.status,
		Err:      s.err,
		Version:  s.version,
	}
}

func cloneMessages(messages []models.Message) []models.Message {
	if messages == nil {
		return nil
	}
	c := make([]models.Message, len(messages))
	for i, msg := range messages {
		c[i] = msg.Clone()
	}
	return c
}
