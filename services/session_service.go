package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/server"
)

// alertRecorder is the per-session prompter; it keeps the latest alert for
// the next status read and forwards to the log.
type alertRecorder struct {
	mu    sync.Mutex
	alert string
	raw   string
	log   server.LogPrompter
}

func (a *alertRecorder) set(alert, raw string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alert = alert
	if raw != "" {
		a.raw = raw
	}
}

func (a *alertRecorder) take() (string, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	alert, raw := a.alert, a.raw
	a.alert = ""
	return alert, raw
}

func (a *alertRecorder) UnknownMessage(ctx context.Context, env proto.Envelope) {
	a.set(AlertUnknownMessage, env.RawSingleForm)
	a.log.UnknownMessage(ctx, env)
}

func (a *alertRecorder) UnsupportedType(ctx context.Context, env proto.Envelope) {
	a.set(AlertUnsupportedType, env.RawSingleForm)
	a.log.UnsupportedType(ctx, env)
}

func (a *alertRecorder) ScanAgain(ctx context.Context, progress float64) {
	a.set(AlertScanAgain, "")
	a.log.ScanAgain(ctx, progress)
}

// SessionServiceImpl implements SessionService
type SessionServiceImpl struct {
	sessions *server.SessionRegistry
	registry *proto.Registry
	handlers map[proto.Kind]server.KindHandler
	relayer  server.Relayer
}

// NewSessionService creates a new session service. Every session routes
// decoded batches to handlers; kinds missing from handlers are unsupported.
func NewSessionService(sessions *server.SessionRegistry, registry *proto.Registry, handlers map[proto.Kind]server.KindHandler, relayer server.Relayer) SessionService {
	return &SessionServiceImpl{
		sessions: sessions,
		registry: registry,
		handlers: handlers,
		relayer:  relayer,
	}
}

// LogKindHandlers accepts every known kind and logs what arrived.
func LogKindHandlers() map[proto.Kind]server.KindHandler {
	handlers := make(map[proto.Kind]server.KindHandler, len(proto.Kinds))
	for _, kind := range proto.Kinds {
		handlers[kind] = func(ctx context.Context, msgs []proto.Message) error {
			for _, msg := range msgs {
				slog.InfoContext(ctx, "Message received", "kind", msg.Kind.String(), "protocol", msg.ProtocolID, "id", msg.ID)
			}
			return nil
		}
	}
	return handlers
}

func (ss *SessionServiceImpl) OpenSession() (*SessionInfo, error) {
	recorder := &alertRecorder{}
	s := ss.sessions.Open(server.DispatcherOptions{
		Registry: ss.registry,
		Prompter: recorder,
		Relayer:  ss.relayer,
		Data:     recorder,
	})
	router := s.Dispatcher().Router()
	for kind, fn := range ss.handlers {
		router.Register(kind, fn)
	}
	info := sessionInfo(s)
	return &info, nil
}

func (ss *SessionServiceImpl) get(id string) (*server.Session, error) {
	s, ok := ss.sessions.Get(id)
	if !ok {
		return nil, ServiceError{
			Code:    ErrCodeNotFound,
			Message: "Session not found: " + id,
		}
	}
	return s, nil
}

func (ss *SessionServiceImpl) GetSession(id string) (*SessionInfo, error) {
	s, err := ss.get(id)
	if err != nil {
		return nil, err
	}
	info := sessionInfo(s)
	return &info, nil
}

func (ss *SessionServiceImpl) SubmitFrame(id string, req FrameRequest) (*SessionInfo, error) {
	if req.Frame == "" {
		return nil, ServiceError{Code: ErrCodeInvalidInput, Message: "Frame cannot be empty"}
	}
	transport, err := proto.ParseTransportKind(req.Transport)
	if err != nil {
		return nil, ServiceError{Code: ErrCodeInvalidInput, Message: "Invalid transport", Cause: err}
	}
	s, err := ss.get(id)
	if err != nil {
		return nil, err
	}

	s.Handle(context.Background(), req.Frame, transport)
	info := sessionInfo(s)
	return &info, nil
}

func (ss *SessionServiceImpl) ResetSession(id string) error {
	s, err := ss.get(id)
	if err != nil {
		return err
	}
	s.Dispatcher().Reset()
	return nil
}

func (ss *SessionServiceImpl) RelaySession(id string) error {
	s, err := ss.get(id)
	if err != nil {
		return err
	}
	env, ok := s.Dispatcher().Last()
	if !ok {
		if recorder, isRecorder := s.Dispatcher().Data().(*alertRecorder); isRecorder {
			recorder.mu.Lock()
			env.RawSingleForm = recorder.raw
			recorder.mu.Unlock()
		}
	}
	switch err := s.Dispatcher().Relay(context.Background(), env); {
	case err == nil:
		return nil
	case errors.Is(err, server.ErrNothingToRelay):
		return ServiceError{Code: ErrCodeInvalidInput, Message: "Session has nothing to relay"}
	case errors.Is(err, server.ErrNoRelay):
		return ServiceError{Code: ErrCodeUnsupported, Message: "No relay configured"}
	default:
		return ServiceError{Code: ErrCodeInternal, Message: "Relay failed", Cause: err}
	}
}

func (ss *SessionServiceImpl) CloseSession(id string) error {
	if !ss.sessions.Delete(id) {
		return ServiceError{
			Code:    ErrCodeNotFound,
			Message: "Session not found: " + id,
		}
	}
	return nil
}

func (ss *SessionServiceImpl) ListSessions() ([]SessionInfo, error) {
	sessions := ss.sessions.List()
	result := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, sessionInfo(s))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Created.Before(result[j].Created)
	})
	return result, nil
}
