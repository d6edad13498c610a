package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/airlink/transport"
)

type WebSocketTransport struct {
	channel string
	conn    *websocket.Conn
	wmu     sync.Mutex
}

// NewWebSocketTransport joins channel on whatever hub Connect dials. An
// empty channel is the hub's default.
func NewWebSocketTransport(channel string) *WebSocketTransport {
	return &WebSocketTransport{channel: channel}
}

func relayURL(addr, channel string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid WebSocket URL: %w", err)
	}

	switch u.Scheme {
	case "tcp", "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" {
		u.Path = "/"
	}
	if channel != "" {
		q := u.Query()
		q.Set("channel", channel)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (t *WebSocketTransport) Connect(ctx context.Context, addr string) error {
	target, err := relayURL(addr, t.channel)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to relay hub: %w", err)
	}

	t.conn = conn
	return nil
}

func (t *WebSocketTransport) Send(frame transport.Frame) error {
	if t.conn == nil {
		return fmt.Errorf("transport is not connected")
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send WebSocket message: %w", err)
	}

	slog.Debug("Sent relay frame", "type", frame.Type, "size", len(frame.Data))
	return nil
}

func (t *WebSocketTransport) Read() (transport.Frame, error) {
	if t.conn == nil {
		return transport.Frame{}, fmt.Errorf("transport is not connected")
	}

	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			return transport.Frame{}, fmt.Errorf("WebSocket connection error: %w", err)
		}
		return transport.Frame{}, fmt.Errorf("connection closed: %w", err)
	}

	var frame transport.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return transport.Frame{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return frame, nil
}

func (t *WebSocketTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	t.wmu.Lock()
	err := t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.wmu.Unlock()
	if err != nil {
		slog.Warn("Failed to send close message", "error", err)
	}
	return t.conn.Close()
}
