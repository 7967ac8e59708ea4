package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"chat-backend/internal/chat"
	"chat-backend/internal/database"
	"chat-backend/internal/llm"
	pkgapi "chat-backend/pkg/api"
)

const apiKeySetting = "upstream_api_key"

type ChatService struct {
	db        *gorm.DB
	registry  *llm.Registry
	transport chat.Transport
	sessions  *chat.SessionCache
}

func NewChatService(db *gorm.DB, registry *llm.Registry, transport chat.Transport, cacheSize int) *ChatService {
	service := &ChatService{
		db:        db,
		registry:  registry,
		transport: transport,
		sessions:  chat.NewSessionCache(cacheSize),
	}

	// Restore a previously persisted API key, if any.
	if key, err := database.GetSetting(db, apiKeySetting); err == nil && key != "" {
		registry.SetAPIKey(key)
	}

	return service
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Get("/models", RestHandler(s.GetModels))
		r.Get("/sessions", RestHandler(s.GetSessions))
		r.Post("/sessions", RestHandler(s.StartSession))
		r.Get("/sessions/{session_id}", RestHandler(s.GetSession))
		r.Delete("/sessions/{session_id}", RestHandler(s.DeleteSession))
		r.Post("/sessions/{session_id}/rename", RestHandler(s.RenameSession))
		r.Post("/sessions/{session_id}/messages", RestStreamHandler(s.SendMessage))
		r.Post("/sessions/{session_id}/cancel", RestHandler(s.CancelStream))
		r.Post("/sessions/{session_id}/clear", RestHandler(s.ClearSession))
		r.Delete("/sessions/{session_id}/messages/{message_id}", RestHandler(s.DeleteMessage))
		r.Get("/sessions/{session_id}/history", RestHandler(s.GetHistory))
		r.Get("/api-key", RestHandler(s.GetAPIKey))
		r.Post("/api-key", RestHandler(s.SetAPIKey))
	})
}

// domainError maps session errors onto HTTP status codes.
func domainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrInvalidInput), errors.Is(err, chat.ErrUnknownModel):
		return CodedError(http.StatusBadRequest, err)
	case errors.Is(err, chat.ErrConflict):
		return CodedError(http.StatusConflict, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return CodedError(http.StatusNotFound, err)
	default:
		var aborted *chat.StreamAbortedError
		if errors.As(err, &aborted) {
			return CodedError(http.StatusBadGateway, err)
		}
		return err
	}
}

func (s *ChatService) GetModels(r *http.Request) (any, error) {
	models := s.registry.Models()
	resp := pkgapi.GetModelsResponse{Models: make([]pkgapi.ModelInfo, 0, len(models))}
	for _, m := range models {
		resp.Models = append(resp.Models, pkgapi.ModelInfo{ID: m.ID, Name: m.Name})
	}
	return resp, nil
}

func (s *ChatService) GetSessions(r *http.Request) (any, error) {
	sessions, err := database.GetSessions(s.db)
	if err != nil {
		return nil, err
	}

	resp := pkgapi.GetSessionsResponse{Sessions: make([]pkgapi.ChatSessionMetadata, 0, len(sessions))}
	for _, session := range sessions {
		resp.Sessions = append(resp.Sessions, sessionMetadata(session))
	}
	return resp, nil
}

func (s *ChatService) StartSession(r *http.Request) (any, error) {
	req, err := ParseRequest[pkgapi.StartSessionRequest](r)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		// Sessions created without a model get the first configured one.
		if models := s.registry.Models(); len(models) > 0 {
			model = models[0].ID
		}
	} else if _, err := s.registry.Resolve(model); err != nil {
		return nil, domainError(err)
	}

	title := req.Title
	if title == "" {
		title = "New Chat"
	}

	sessionID := uuid.New()
	err = database.CreateSession(s.db, &database.ChatSession{
		ID:        sessionID,
		Title:     title,
		Model:     model,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	return pkgapi.StartSessionResponse{SessionID: sessionID.String()}, nil
}

func (s *ChatService) GetSession(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	session, err := database.GetSession(s.db, sessionID)
	if err != nil {
		return nil, domainError(err)
	}
	return sessionMetadata(session), nil
}

func (s *ChatService) RenameSession(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[pkgapi.RenameSessionRequest](r)
	if err != nil {
		return nil, err
	}

	if _, err := database.GetSession(s.db, sessionID); err != nil {
		return nil, domainError(err)
	}
	return nil, database.UpdateSessionTitle(s.db, sessionID, req.Title)
}

func (s *ChatService) DeleteSession(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	if live, ok := s.sessions.Peek(sessionID); ok {
		// Stop any in-flight stream before the transcript goes away.
		if err := live.Cancel(); err != nil && !errors.Is(err, chat.ErrAlreadyIdle) {
			return nil, domainError(err)
		}
		s.sessions.Remove(sessionID)
	}

	return nil, database.DeleteSession(s.db, sessionID)
}

// SendMessage submits a user message and streams the session's events back
// as NDJSON frames until the exchange reaches a terminal state.
func (s *ChatService) SendMessage(r *http.Request) (StreamResponse, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[pkgapi.ChatRequest](r)
	if err != nil {
		return nil, err
	}

	stored, err := database.GetSession(s.db, sessionID)
	if err != nil {
		return nil, domainError(err)
	}
	model := req.Model
	if model == "" {
		model = stored.Model
	}

	session, err := s.liveSession(sessionID)
	if err != nil {
		return nil, domainError(err)
	}

	ctx := r.Context()
	events := make(chan chat.Event, 64)
	// consumerDone unblocks the subscriber once the stream loop below exits,
	// whether or not the request context was cancelled; without it a full
	// channel would hold the session lock against unsubscribe.
	consumerDone := make(chan struct{})
	unsubscribe := session.Subscribe(func(ev chat.Event) {
		select {
		case events <- ev:
		case <-consumerDone:
		case <-ctx.Done():
		}
	})

	if err := session.Submit(ctx, req.Message, model); err != nil {
		unsubscribe()
		return nil, domainError(err)
	}

	stream := func(yield func(any, error) bool) {
		defer unsubscribe()
		defer close(consumerDone)
		for {
			select {
			case ev := <-events:
				if ev.Kind == chat.EventStatus && ev.Err != nil {
					yield(nil, domainError(ev.Err))
					return
				}
				if !yield(streamFrame(ev), nil) {
					return
				}
				if ev.Kind == chat.EventStatus && ev.Status == chat.StatusIdle {
					return
				}
			case <-ctx.Done():
				// Client went away mid-stream; stop the upstream request.
				if err := session.Cancel(); err != nil && !errors.Is(err, chat.ErrAlreadyIdle) {
					slog.Error("error cancelling stream after client disconnect", "session_id", sessionID, "error", err)
				}
				return
			}
		}
	}
	return stream, nil
}

func (s *ChatService) CancelStream(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	live, ok := s.sessions.Peek(sessionID)
	if !ok {
		return pkgapi.CancelResponse{Stopped: false}, nil
	}

	if err := live.Cancel(); err != nil {
		if errors.Is(err, chat.ErrAlreadyIdle) {
			// Redundant cancel is a soft no-op.
			return pkgapi.CancelResponse{Stopped: false}, nil
		}
		return nil, domainError(err)
	}
	return pkgapi.CancelResponse{Stopped: true}, nil
}

func (s *ChatService) ClearSession(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	if live, ok := s.sessions.Peek(sessionID); ok {
		if err := live.Reset(); err != nil {
			return nil, domainError(err)
		}
	}

	return nil, database.ClearChatMessages(s.db, sessionID)
}

func (s *ChatService) DeleteMessage(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}
	messageID, err := URLParamUUID(r, "message_id")
	if err != nil {
		return nil, err
	}

	if live, ok := s.sessions.Peek(sessionID); ok {
		status := live.Status()
		if status == chat.StatusSending || status == chat.StatusStreaming {
			return nil, domainError(chat.ErrConflict)
		}
		// Drop the live transcript; the next exchange rebuilds it from
		// storage without the deleted message.
		s.sessions.Remove(sessionID)
	}

	return nil, database.DeleteChatMessage(s.db, sessionID, messageID)
}

func (s *ChatService) GetHistory(r *http.Request) (any, error) {
	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}
	query, err := ParseRequestQueryParams[pkgapi.HistoryQuery](r)
	if err != nil {
		return nil, err
	}

	if _, err := database.GetSession(s.db, sessionID); err != nil {
		return nil, domainError(err)
	}

	messages, err := database.GetChatMessages(s.db, sessionID, query.Limit, query.Offset)
	if err != nil {
		return nil, err
	}

	resp := make([]pkgapi.ChatHistoryItem, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, pkgapi.ChatHistoryItem{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			Failed:    msg.Failed,
			Timestamp: msg.CreatedAt.Format("2006-01-02 15:04:05"),
			Metadata:  msg.Metadata,
		})
	}
	return resp, nil
}

func (s *ChatService) GetAPIKey(r *http.Request) (any, error) {
	return pkgapi.ApiKey{ApiKey: s.registry.APIKey()}, nil
}

func (s *ChatService) SetAPIKey(r *http.Request) (any, error) {
	req, err := ParseRequest[pkgapi.ApiKey](r)
	if err != nil {
		return nil, err
	}

	if err := database.SetSetting(s.db, apiKeySetting, req.ApiKey); err != nil {
		return nil, err
	}
	s.registry.SetAPIKey(req.ApiKey)
	return nil, nil
}

// liveSession returns the in-memory session for sessionID, rebuilding it from
// persisted history on a cache miss. Sealed messages are written back to
// storage through a session observer, so the live transcript and the database
// stay consistent.
func (s *ChatService) liveSession(sessionID uuid.UUID) (*chat.Session, error) {
	if _, err := database.GetSession(s.db, sessionID); err != nil {
		return nil, err
	}

	return s.sessions.GetSession(sessionID, func() (*chat.Session, error) {
		messages, err := database.GetChatMessages(s.db, sessionID, 0, 0)
		if err != nil {
			return nil, err
		}

		seed := make([]chat.Message, 0, len(messages))
		for _, msg := range messages {
			seed = append(seed, chat.Message{
				ID:        msg.ID,
				Role:      chat.Role(msg.Role),
				Content:   msg.Content,
				Failed:    msg.Failed,
				CreatedAt: msg.CreatedAt,
			})
		}

		session := chat.NewSession(sessionID, s.registry, s.transport, seed)
		session.Subscribe(s.messageRecorder(sessionID))
		return session, nil
	})
}

// messageRecorder persists sealed messages as they are added to the live
// transcript.
func (s *ChatService) messageRecorder(sessionID uuid.UUID) func(chat.Event) {
	return func(ev chat.Event) {
		if ev.Kind != chat.EventMessage || ev.Message == nil || !ev.Message.Sealed {
			return
		}
		msg := ev.Message

		var metadata datatypes.JSON
		if msg.Model != "" {
			if b, err := json.Marshal(map[string]string{"model": msg.Model}); err == nil {
				metadata = datatypes.JSON(b)
			}
		}

		record := database.ChatMessage{
			ID:        msg.ID,
			SessionID: sessionID,
			Role:      string(msg.Role),
			Content:   msg.Content,
			Failed:    msg.Failed,
			Metadata:  metadata,
			CreatedAt: msg.CreatedAt,
		}
		if err := database.SaveChatMessage(s.db, &record); err != nil {
			slog.Error("failed to persist chat message", "session_id", sessionID, "message_id", msg.ID, "error", err)
		}
	}
}

func sessionMetadata(session database.ChatSession) pkgapi.ChatSessionMetadata {
	return pkgapi.ChatSessionMetadata{
		ID:        session.ID,
		Title:     session.Title,
		Model:     session.Model,
		CreatedAt: session.CreatedAt,
	}
}

func streamFrame(ev chat.Event) pkgapi.ChatStreamEvent {
	frame := pkgapi.ChatStreamEvent{
		Type:   string(ev.Kind),
		Status: string(ev.Status),
		Chunk:  ev.Chunk,
	}
	if ev.Message != nil {
		frame.Message = &pkgapi.ChatHistoryItem{
			ID:        ev.Message.ID,
			Role:      string(ev.Message.Role),
			Content:   ev.Message.Content,
			Failed:    ev.Message.Failed,
			Timestamp: ev.Message.CreatedAt.Format("2006-01-02 15:04:05"),
		}
	}
	return frame
}
