package transport

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type peer struct {
	id      string
	channel string
	conn    *websocket.Conn
	wmu     sync.Mutex
}

func newPeer(conn *websocket.Conn, channel string) *peer {
	return &peer{
		id:      "ws-" + uuid.NewString(),
		channel: channel,
		conn:    conn,
	}
}

func (p *peer) send(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	p.wmu.Lock()
	defer p.wmu.Unlock()
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}

	slog.Debug("Sent relay frame", "to", p.id, "type", frame.Type, "size", len(frame.Data))
	return nil
}
