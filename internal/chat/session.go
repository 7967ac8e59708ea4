package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusSending   Status = "sending"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

type EventKind string

const (
	// EventStatus fires on every status transition.
	EventStatus EventKind = "status"
	// EventChunk fires for each fragment appended to the streaming message.
	EventChunk EventKind = "chunk"
	// EventMessage fires when a message is appended or sealed.
	EventMessage EventKind = "message"
)

// Event is delivered to subscribers after every history or status mutation.
type Event struct {
	Kind    EventKind
	Status  Status
	Chunk   string
	Message *Message
	Err     error
}

// Session owns one conversation transcript and sequences request/response
// exchanges with a model backend. At most one stream is in flight at a time;
// all mutation is serialized by the session mutex, so transport callbacks may
// arrive from any goroutine.
type Session struct {
	mu        sync.Mutex
	id        uuid.UUID
	registry  Registry
	transport Transport

	history []Message
	model   string
	status  Status

	// gen identifies the current exchange. Callbacks carry the generation
	// they were created for; a mismatch means the exchange was cancelled or
	// superseded and the callback is dropped.
	gen    uint64
	handle StreamHandle

	observers map[int]func(Event)
	nextObs   int
}

// NewSession creates a session seeded with prior history. Seed messages are
// copied and treated as sealed.
func NewSession(id uuid.UUID, registry Registry, transport Transport, seed []Message) *Session {
	history := make([]Message, len(seed))
	copy(history, seed)
	for i := range history {
		history[i].Sealed = true
	}
	return &Session{
		id:        id,
		registry:  registry,
		transport: transport,
		history:   history,
		status:    StatusIdle,
		observers: make(map[int]func(Event)),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) ActiveModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// History returns a snapshot of the transcript in insertion order.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]Message, len(s.history))
	copy(snapshot, s.history)
	return snapshot
}

// Subscribe registers an observer that fires after every history or status
// mutation, in mutation order. Observers run with the session lock held and
// must not call back into the session; hand events off to a channel or
// goroutine instead. The returned function removes the observer.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Submit appends an immutable user message and requests a token stream for
// the given model, seeded with the full transcript. It fails with
// ErrInvalidInput for blank text, an ErrUnknownModel error for unregistered
// models, and ErrConflict while a stream is in flight; none of these mutate
// history. A new Submit is permitted from the error state.
func (s *Session) Submit(ctx context.Context, userText, modelID string) error {
	text := strings.TrimSpace(userText)
	if text == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	if s.status == StatusSending || s.status == StatusStreaming {
		s.mu.Unlock()
		return ErrConflict
	}

	params, err := s.registry.Resolve(modelID)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	msg := newMessage(RoleUser, text, modelID)
	msg.Sealed = true
	s.history = append(s.history, msg)
	s.model = modelID
	s.status = StatusSending
	s.gen++
	gen := s.gen
	s.handle = nil

	seed := make([]Message, len(s.history))
	copy(seed, s.history)

	s.emitLocked(
		Event{Kind: EventMessage, Status: StatusSending, Message: &msg},
		Event{Kind: EventStatus, Status: StatusSending},
	)
	s.mu.Unlock()

	handle, err := s.transport.OpenStream(ctx, params, seed, &streamCallbacks{session: s, gen: gen})
	if err != nil {
		s.onStreamEnd(gen, err)
		return &StreamAbortedError{Cause: err}
	}

	s.mu.Lock()
	if gen == s.gen && (s.status == StatusSending || s.status == StatusStreaming) {
		s.handle = handle
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// The exchange was cancelled while the stream was still opening, so the
	// handle arrived too late to be stored. Cancel it here; dropping it would
	// leave the upstream request running to completion.
	handle.Cancel()
	return nil
}

// Cancel requests best-effort cancellation of the in-flight stream, seals
// whatever assistant content has accumulated, and returns the session to
// idle. Calling Cancel with no stream in progress is a no-op that returns
// the soft ErrAlreadyIdle signal.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.status != StatusSending && s.status != StatusStreaming {
		s.mu.Unlock()
		return ErrAlreadyIdle
	}

	// Invalidate in-flight callbacks; chunks that race in after this point
	// are dropped on arrival.
	s.gen++
	handle := s.handle
	s.handle = nil

	var events []Event
	if sealed := s.sealStreamingLocked(false); sealed != nil {
		events = append(events, Event{Kind: EventMessage, Status: StatusIdle, Message: sealed})
	}
	s.status = StatusIdle
	events = append(events, Event{Kind: EventStatus, Status: StatusIdle})
	s.emitLocked(events...)
	s.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	return nil
}

// Reset clears the transcript. It is valid when the session is idle, or in
// the error state (where it doubles as the error acknowledgment), and fails
// with ErrConflict while a stream is in flight.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle && s.status != StatusError {
		return ErrConflict
	}
	s.history = s.history[:0]
	s.status = StatusIdle
	s.emitLocked(Event{Kind: EventStatus, Status: StatusIdle})
	return nil
}

// streamCallbacks binds transport callbacks to the exchange generation they
// were created for.
type streamCallbacks struct {
	session *Session
	gen     uint64
}

func (c *streamCallbacks) OnStreamStart()        { c.session.onStreamStart(c.gen) }
func (c *streamCallbacks) OnChunk(text string)   { c.session.onChunk(c.gen, text) }
func (c *streamCallbacks) OnStreamEnd(err error) { c.session.onStreamEnd(c.gen, err) }

func (s *Session) onStreamStart(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.status != StatusSending {
		return
	}
	msg := newMessage(RoleAssistant, "", s.model)
	s.history = append(s.history, msg)
	s.status = StatusStreaming
	s.emitLocked(
		Event{Kind: EventMessage, Status: StatusStreaming, Message: &msg},
		Event{Kind: EventStatus, Status: StatusStreaming},
	)
}

func (s *Session) onChunk(gen uint64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.status != StatusStreaming {
		// Late delivery after cancellation or a stale exchange.
		return
	}
	last := &s.history[len(s.history)-1]
	last.Content += text
	s.emitLocked(Event{Kind: EventChunk, Status: StatusStreaming, Chunk: text})
}

func (s *Session) onStreamEnd(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || (s.status != StatusSending && s.status != StatusStreaming) {
		return
	}
	s.handle = nil

	if err == nil {
		var events []Event
		if sealed := s.sealStreamingLocked(false); sealed != nil {
			events = append(events, Event{Kind: EventMessage, Status: StatusIdle, Message: sealed})
		}
		s.status = StatusIdle
		events = append(events, Event{Kind: EventStatus, Status: StatusIdle})
		s.emitLocked(events...)
		return
	}

	// Partial output is retained for user visibility, never discarded.
	sealed := s.sealStreamingLocked(true)
	if sealed == nil {
		// The stream failed before it started; record the failure as an
		// empty assistant message so the transcript shows the attempt.
		msg := newMessage(RoleAssistant, "", s.model)
		msg.Sealed = true
		msg.Failed = true
		s.history = append(s.history, msg)
		sealed = &msg
	}
	s.status = StatusError
	aborted := &StreamAbortedError{Partial: sealed.Content, Cause: err}
	slog.Error("chat stream aborted", "session_id", s.id, "model", s.model, "error", err)
	s.emitLocked(
		Event{Kind: EventMessage, Status: StatusError, Message: sealed, Err: aborted},
		Event{Kind: EventStatus, Status: StatusError, Err: aborted},
	)
}

// sealStreamingLocked seals the in-progress assistant message, if any, and
// returns a copy of it. Caller holds the session lock.
func (s *Session) sealStreamingLocked(failed bool) *Message {
	if len(s.history) == 0 {
		return nil
	}
	last := &s.history[len(s.history)-1]
	if last.Sealed || last.Role != RoleAssistant {
		return nil
	}
	last.Sealed = true
	last.Failed = failed
	sealed := *last
	return &sealed
}

// emitLocked delivers events to the registered observers in order. Caller
// holds the session lock.
func (s *Session) emitLocked(events ...Event) {
	for _, ev := range events {
		for _, fn := range s.observers {
			fn(ev)
		}
	}
}
