// Package transport relays raw frames between two paired applications over
// WebSocket when neither can scan the other's screen.
package transport

import "time"

// ServiceType is the mDNS service a relay hub advertises.
const ServiceType = "_airlink-relay._tcp"

const (
	FrameWelcome = "welcome"
	FrameRelay   = "relay"
	FrameError   = "error"
)

// Frame is one JSON message on a relay connection.
type Frame struct {
	Type      string `json:"type"`
	Data      string `json:"data,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func NewRelayFrame(data string) Frame {
	return Frame{Type: FrameRelay, Data: data, Timestamp: time.Now().Unix()}
}
