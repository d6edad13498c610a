// Package handler holds the stateful wire-format decoders a dispatcher feeds
// inbound strings to. A handler accumulates frames across calls until it can
// produce a message batch.
package handler

import (
	"errors"
	"net/url"
	"strings"

	"github.com/mbocsi/airlink/proto"
)

var ErrNoResult = errors.New("no decoded result")

// Handler decodes one wire format.
type Handler interface {
	Name() string
	// CanHandle is a cheap check; it must not change state.
	CanHandle(input string) bool
	// Receive feeds one frame. An error is reported alongside an Unsupported
	// outcome when the frame looked like this format but was malformed.
	Receive(input string) (proto.Outcome, error)
	// Progress never decreases between resets.
	Progress() float64
	Result() (proto.Batch, error)
	// SingleForm is the best-effort one-string form of what was received.
	SingleForm() (string, bool)
	Reset()
}

// Default returns the built-in handlers in priority order.
func Default(reg *proto.Registry) []Handler {
	return []Handler{
		NewURHandler(),
		NewBCURHandler(reg),
		NewLegacyHandler(),
	}
}

var linkParams = []string{"ur", "d", "data"}

// Unwrap extracts the payload from a deep link such as
// airgap-wallet://?ur=UR:... or https://host/?d=chunk. Other input is
// returned trimmed.
func Unwrap(input string) string {
	input = strings.TrimSpace(input)
	idx := strings.Index(input, "?")
	if idx < 0 {
		return input
	}
	if !strings.Contains(input[:idx], "://") && idx != 0 {
		return input
	}
	query, err := url.ParseQuery(input[idx+1:])
	if err != nil {
		return input
	}
	for _, key := range linkParams {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v
		}
	}
	return input
}
