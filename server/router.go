package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mbocsi/airlink/proto"
)

// KindHandler receives every message of one kind from a decoded batch.
type KindHandler func(ctx context.Context, msgs []proto.Message) error

// UnsupportedHandler is called with the whole envelope when a batch holds a
// kind nobody can take.
type UnsupportedHandler func(ctx context.Context, env proto.Envelope)

// Router fans a decoded batch out to per-kind handlers. Handlers run in their
// own goroutines and Route does not wait for them.
type Router struct {
	mu          sync.RWMutex
	handlers    map[proto.Kind]KindHandler
	unsupported UnsupportedHandler
	metrics     *Metrics

	wg sync.WaitGroup
}

func NewRouter(metrics *Metrics) *Router {
	return &Router{
		handlers: make(map[proto.Kind]KindHandler),
		metrics:  metrics,
	}
}

func (r *Router) Register(kind proto.Kind, fn KindHandler) {
	slog.Debug("Registering kind handler", "kind", kind.String())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = fn
}

func (r *Router) Unregister(kind proto.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, kind)
}

func (r *Router) OnUnsupported(fn UnsupportedHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsupported = fn
}

// Handles reports whether a handler is registered for kind.
func (r *Router) Handles(kind proto.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}

type kindGroup struct {
	kind proto.Kind
	msgs []proto.Message
	fn   KindHandler
}

// Route groups env.Batch by kind in first-seen order. If any kind is unknown
// or has no handler, nothing is dispatched: the unsupported handler gets the
// whole envelope and Route returns StatusUnsupported.
func (r *Router) Route(ctx context.Context, env proto.Envelope) proto.Status {
	r.mu.RLock()
	groups := make([]*kindGroup, 0, len(env.Batch))
	index := make(map[proto.Kind]*kindGroup)
	var rejected *proto.Kind
	for _, msg := range env.Batch {
		g, ok := index[msg.Kind]
		if !ok {
			fn, registered := r.handlers[msg.Kind]
			if !msg.Kind.Valid() || !registered {
				kind := msg.Kind
				rejected = &kind
				break
			}
			g = &kindGroup{kind: msg.Kind, fn: fn}
			index[msg.Kind] = g
			groups = append(groups, g)
		}
		g.msgs = append(g.msgs, msg)
	}
	unsupported := r.unsupported
	r.mu.RUnlock()

	if rejected != nil || len(groups) == 0 {
		kind := "none"
		if rejected != nil {
			kind = rejected.String()
		}
		slog.Info("Batch holds an unsupported message kind", "kind", kind, "messages", len(env.Batch), "session", env.Context.SessionID)
		r.metrics.Unsupported()
		if unsupported != nil {
			unsupported(ctx, env)
		}
		return proto.StatusUnsupported
	}

	// Handlers outlive the frame that completed the batch.
	runCtx := context.WithoutCancel(ctx)
	for _, g := range groups {
		r.metrics.Routed(g.kind, len(g.msgs))
		r.wg.Add(1)
		go r.run(runCtx, g)
	}
	slog.Debug("Batch routed", "groups", len(groups), "messages", len(env.Batch), "session", env.Context.SessionID)
	return proto.StatusSuccess
}

func (r *Router) run(ctx context.Context, g *kindGroup) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Kind handler panicked", "kind", g.kind.String(), "panic", fmt.Sprint(rec))
		}
	}()
	if err := g.fn(ctx, g.msgs); err != nil {
		slog.Error("Kind handler failed", "kind", g.kind.String(), "messages", len(g.msgs), "error", err.Error())
	}
}

// Wait blocks until every dispatched handler has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}
