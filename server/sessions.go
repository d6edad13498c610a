package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbocsi/airlink/proto"
)

// Session wraps a Dispatcher for use from concurrent requests. Frames for one
// session are handled one at a time.
type Session struct {
	ID      string
	Created time.Time

	mu         sync.Mutex
	dispatcher *Dispatcher
	lastSeen   time.Time
	outcome    proto.Outcome
}

func (s *Session) Handle(ctx context.Context, input string, transport proto.TransportKind) proto.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = s.dispatcher.Handle(ctx, input, transport)
	return s.outcome
}

// Outcome is the result of the last handled frame.
func (s *Session) Outcome() proto.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *Session) Dispatcher() *Dispatcher {
	return s.dispatcher
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

type SessionRegistry struct {
	mu      sync.RWMutex
	store   map[string]*Session
	ttl     time.Duration
	metrics *Metrics
	now     func() time.Time
}

// NewSessionRegistry keeps sessions until they sit idle for ttl. A zero ttl
// disables eviction.
func NewSessionRegistry(ttl time.Duration, metrics *Metrics) *SessionRegistry {
	return &SessionRegistry{
		store:   make(map[string]*Session),
		ttl:     ttl,
		metrics: metrics,
		now:     time.Now,
	}
}

// Open creates a session around a new Dispatcher built from opts.
func (r *SessionRegistry) Open(opts DispatcherOptions) *Session {
	if opts.SessionID == "" {
		opts.SessionID = generateSessionId("session")
	}
	if opts.Metrics == nil {
		opts.Metrics = r.metrics
	}
	now := r.now()
	s := &Session{
		ID:         opts.SessionID,
		Created:    now,
		dispatcher: NewDispatcher(opts),
		lastSeen:   now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.store[s.ID]; !exists {
		r.metrics.SessionOpened()
	}
	r.store[s.ID] = s
	slog.Debug("Opened session", "session", s.ID)
	return s
}

// Get returns a live session and marks it as used.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.store[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	now := r.now()
	if r.expired(s, now) {
		r.Delete(id)
		return nil, false
	}
	s.touch(now)
	return s, true
}

func (r *SessionRegistry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[id]; !ok {
		return false
	}
	delete(r.store, id)
	r.metrics.SessionClosed()
	slog.Debug("Closed session", "session", id)
	return true
}

func (r *SessionRegistry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.store))
	for _, s := range r.store {
		sessions = append(sessions, s)
	}
	return sessions
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store)
}

func (r *SessionRegistry) expired(s *Session, now time.Time) bool {
	return r.ttl > 0 && now.Sub(s.idleSince()) > r.ttl
}

// Evict drops sessions idle for longer than the ttl and returns how many
// were removed.
func (r *SessionRegistry) Evict() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.store {
		if r.expired(s, now) {
			delete(r.store, id)
			r.metrics.SessionClosed()
			evicted++
		}
	}
	if evicted > 0 {
		slog.Info("Evicted idle sessions", "count", evicted, "remaining", len(r.store))
	}
	return evicted
}

// Run evicts idle sessions every interval until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Evict()
		}
	}
}
