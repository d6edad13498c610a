package server

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mbocsi/airlink/proto"
)

// Prompter surfaces alerts to whoever is driving the session. Calls are
// fire-and-forget.
type Prompter interface {
	// UnknownMessage is raised when nothing could be decoded. The envelope
	// carries the raw input so it can still be relayed or copied.
	UnknownMessage(ctx context.Context, env proto.Envelope)
	// UnsupportedType is raised when a batch decoded but cannot be routed.
	UnsupportedType(ctx context.Context, env proto.Envelope)
	// ScanAgain asks for the next frame of a partial payload that did not
	// come from a live scanner.
	ScanAgain(ctx context.Context, progress float64)
}

// Relayer hands a raw string to the other application's own transport.
type Relayer interface {
	Relay(ctx context.Context, raw string) error
}

// Clipboard copies a raw string for manual transfer.
type Clipboard interface {
	Copy(ctx context.Context, raw string) error
}

type nopPrompter struct{}

func (nopPrompter) UnknownMessage(context.Context, proto.Envelope)  {}
func (nopPrompter) UnsupportedType(context.Context, proto.Envelope) {}
func (nopPrompter) ScanAgain(context.Context, float64)              {}

// LogPrompter reports alerts to a logger.
type LogPrompter struct {
	Logger *slog.Logger
}

func (p LogPrompter) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p LogPrompter) UnknownMessage(ctx context.Context, env proto.Envelope) {
	p.logger().WarnContext(ctx, "Unknown message", "session", env.Context.SessionID, "transport", env.Context.Transport.String(), "raw", env.RawSingleForm)
}

func (p LogPrompter) UnsupportedType(ctx context.Context, env proto.Envelope) {
	p.logger().WarnContext(ctx, "Unsupported message type", "session", env.Context.SessionID, "messages", len(env.Batch), "raw", env.RawSingleForm)
}

func (p LogPrompter) ScanAgain(ctx context.Context, progress float64) {
	p.logger().InfoContext(ctx, "Scan the next code", "progress", progress)
}

func generateSessionId(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
