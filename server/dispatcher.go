package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mbocsi/airlink/handler"
	"github.com/mbocsi/airlink/proto"
)

var (
	ErrNothingToRelay = errors.New("nothing to relay")
	ErrNoRelay        = errors.New("no relay configured")
	ErrNoClipboard    = errors.New("no clipboard configured")
)

type DispatcherOptions struct {
	Registry *proto.Registry
	// Handlers replaces the built-in handler chain when set.
	Handlers []handler.Handler
	// Extra handlers are tried after the built-in ones, in order.
	Extra []handler.Handler

	// Router receives decoded batches. A private router is created when nil;
	// its unsupported path then goes to Prompter.
	Router     *Router
	Prompter   Prompter
	Relayer    Relayer
	Clipboard  Clipboard
	OnProgress func(progress float64)

	Metrics   *Metrics
	Logger    *slog.Logger
	SessionID string
	Data      any
}

// Dispatcher is one decode session. It offers each inbound string to its
// handlers in priority order and routes whatever completes. Callers must not
// call Handle concurrently.
type Dispatcher struct {
	handlers   []handler.Handler
	router     *Router
	prompter   Prompter
	relayer    Relayer
	clipboard  Clipboard
	onProgress func(float64)
	metrics    *Metrics
	logger     *slog.Logger
	sessionID  string
	data       any

	mu        sync.Mutex
	transport proto.TransportKind
	last      *proto.Envelope
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	reg := opts.Registry
	if reg == nil {
		reg = proto.DefaultRegistry()
	}
	handlers := opts.Handlers
	if handlers == nil {
		handlers = handler.Default(reg)
	}
	handlers = append(append([]handler.Handler(nil), handlers...), opts.Extra...)

	prompter := opts.Prompter
	if prompter == nil {
		prompter = nopPrompter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = generateSessionId("session")
	}

	router := opts.Router
	if router == nil {
		router = NewRouter(opts.Metrics)
		router.OnUnsupported(prompter.UnsupportedType)
	}

	return &Dispatcher{
		handlers:   handlers,
		router:     router,
		prompter:   prompter,
		relayer:    opts.Relayer,
		clipboard:  opts.Clipboard,
		onProgress: opts.OnProgress,
		metrics:    opts.Metrics,
		logger:     logger.With("session", sessionID),
		sessionID:  sessionID,
		data:       opts.Data,
	}
}

func (d *Dispatcher) SessionID() string {
	return d.sessionID
}

func (d *Dispatcher) Router() *Router {
	return d.router
}

// Data is the caller value carried in every envelope's context.
func (d *Dispatcher) Data() any {
	return d.data
}

func (d *Dispatcher) context() proto.SessionContext {
	return proto.SessionContext{SessionID: d.sessionID, Transport: d.transport, Data: d.data}
}

// Handle offers input to each handler in turn. A Partial outcome keeps all
// handler state so the next frame continues the same payload. Success and
// total failure both reset every handler.
func (d *Dispatcher) Handle(ctx context.Context, input string, transport proto.TransportKind) proto.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.transport = transport
	for _, h := range d.handlers {
		outcome, ok := d.offer(h, input)
		if !ok {
			continue
		}
		d.metrics.Frame(h.Name(), outcome.Status)

		switch outcome.Status {
		case proto.StatusSuccess:
			return d.complete(ctx, h, input)
		case proto.StatusPartial:
			d.logger.Debug("Frame accepted", "handler", h.Name(), "progress", outcome.Progress)
			if d.onProgress != nil {
				d.onProgress(outcome.Progress)
			}
			if transport != proto.TransportQRScanner {
				d.prompter.ScanAgain(ctx, outcome.Progress)
			}
			return outcome
		}
	}

	d.logger.Debug("No handler accepted input", "transport", transport.String(), "length", len(input))
	d.resetAll()
	env := proto.Envelope{RawSingleForm: input, Context: d.context()}
	d.last = &env
	d.prompter.UnknownMessage(ctx, env)
	return proto.Unsupported()
}

// offer checks and feeds one handler. ok is false when the handler declined
// the input or failed on it.
func (d *Dispatcher) offer(h handler.Handler, input string) (outcome proto.Outcome, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Warn("Handler panicked", "handler", h.Name(), "panic", fmt.Sprint(rec))
			outcome, ok = proto.Unsupported(), false
		}
	}()

	if !h.CanHandle(input) {
		return proto.Unsupported(), false
	}
	outcome, err := h.Receive(input)
	if err != nil {
		d.logger.Warn("Handler rejected frame", "handler", h.Name(), "error", err.Error())
		d.metrics.Frame(h.Name(), proto.StatusUnsupported)
		return proto.Unsupported(), false
	}
	if outcome.Status == proto.StatusUnsupported {
		return outcome, false
	}
	return outcome, true
}

func (d *Dispatcher) complete(ctx context.Context, h handler.Handler, input string) proto.Outcome {
	defer d.resetAll()
	d.metrics.Completed(h.Name())

	raw, ok := h.SingleForm()
	if !ok {
		raw = input
	}
	env := proto.Envelope{RawSingleForm: raw, Context: d.context()}

	batch, err := d.result(h)
	if err != nil || len(batch) == 0 {
		if err == nil {
			err = handler.ErrNoResult
		}
		d.logger.Info("Payload complete but not decodable", "handler", h.Name(), "error", err.Error())
		d.last = &env
		d.prompter.UnknownMessage(ctx, env)
		return proto.Unsupported()
	}

	env.Batch = batch
	d.last = &env
	d.logger.Info("Payload decoded", "handler", h.Name(), "messages", len(batch))
	if d.router.Route(ctx, env) != proto.StatusSuccess {
		return proto.Unsupported()
	}
	return proto.Success()
}

func (d *Dispatcher) result(h handler.Handler) (batch proto.Batch, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Name(), rec)
		}
	}()
	return h.Result()
}

func (d *Dispatcher) resetAll() {
	for _, h := range d.handlers {
		h.Reset()
	}
}

// Reset abandons any partial payload.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetAll()
	d.last = nil
}

// Last returns the envelope of the most recent completed payload or rejected
// input, routed or not.
func (d *Dispatcher) Last() (proto.Envelope, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return proto.Envelope{}, false
	}
	return *d.last, true
}

// Relay hands env's raw form to the relay collaborator. Failures are logged
// and returned but leave the session untouched.
func (d *Dispatcher) Relay(ctx context.Context, env proto.Envelope) error {
	if d.relayer == nil {
		return ErrNoRelay
	}
	if env.RawSingleForm == "" {
		return ErrNothingToRelay
	}
	err := d.relayer.Relay(ctx, env.RawSingleForm)
	d.metrics.Relayed("relay", err)
	if err != nil {
		d.logger.Error("Relay failed", "error", err.Error())
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

// Copy hands env's raw form to the clipboard collaborator.
func (d *Dispatcher) Copy(ctx context.Context, env proto.Envelope) error {
	if d.clipboard == nil {
		return ErrNoClipboard
	}
	if env.RawSingleForm == "" {
		return ErrNothingToRelay
	}
	err := d.clipboard.Copy(ctx, env.RawSingleForm)
	d.metrics.Relayed("clipboard", err)
	if err != nil {
		d.logger.Error("Copy to clipboard failed", "error", err.Error())
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}
