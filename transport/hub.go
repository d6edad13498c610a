package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/mdns"
)

// MaxFrameSize bounds one inbound websocket message. Larger messages close
// the connection.
const MaxFrameSize = 1 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub forwards every relay frame a peer sends to the other peers on the same
// channel. Peers pick a channel with the ?channel= query parameter.
type Hub struct {
	Addr    string
	server  *http.Server
	onRelay func(Frame)

	// guards peers, mdns and closed
	cmu    sync.RWMutex
	peers  map[string]*peer
	mdns   *mdns.Server
	closed bool

	maxClients int
	instance   string
	announce   bool
}

func NewHub(addr string) *Hub {
	h := &Hub{
		Addr:       addr,
		maxClients: 16,
		peers:      make(map[string]*peer),
		instance:   "airlink",
	}
	h.server = &http.Server{Addr: addr, Handler: h.Handler()}
	return h
}

func (h *Hub) Name() string { return "relay" }

func (h *Hub) SetMaxClients(n int) {
	h.maxClients = n
}

// Announce makes Start advertise the hub over mDNS as instance.
func (h *Hub) Announce(instance string) {
	h.instance = instance
	h.announce = true
}

// OnRelay observes every frame the hub forwards.
func (h *Hub) OnRelay(fn func(Frame)) {
	h.onRelay = fn
}

// Handler serves the relay endpoint without starting a listener.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleWebSocket)
	return mux
}

func (h *Hub) Start() error {
	slog.Info("Starting relay hub", "addr", h.Addr)

	ln, err := net.Listen("tcp", h.Addr)
	if err != nil {
		return err
	}
	if h.announce {
		if err := h.advertise(ln.Addr()); err != nil {
			slog.Warn("Could not advertise relay hub over mDNS", "error", err.Error())
		}
	}

	err = h.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (h *Hub) advertise(addr net.Addr) error {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}
	service, err := mdns.NewMDNSService(h.instance, ServiceType, "", "", port, nil, []string{"path=/"})
	if err != nil {
		return err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return err
	}
	h.cmu.Lock()
	if h.closed {
		h.cmu.Unlock()
		return server.Shutdown()
	}
	h.mdns = server
	h.cmu.Unlock()
	slog.Info("Advertising relay hub", "service", ServiceType, "port", port)
	return nil
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "error", err)
		return
	}
	conn.SetReadLimit(MaxFrameSize)

	p := newPeer(conn, r.URL.Query().Get("channel"))
	if !h.join(p) {
		slog.Warn("Max clients reached, rejecting connection", "remote_addr", r.RemoteAddr)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "relay full"))
		conn.Close()
		return
	}

	go h.handleConnection(p, r.RemoteAddr)
}

// join adds p unless the hub is full.
func (h *Hub) join(p *peer) bool {
	h.cmu.Lock()
	defer h.cmu.Unlock()
	if len(h.peers) >= h.maxClients {
		return false
	}
	h.peers[p.id] = p
	return true
}

func (h *Hub) handleConnection(p *peer, remoteAddr string) {
	conn := p.conn
	slog.Info("Relay peer connected", "addr", remoteAddr, "id", p.id, "channel", p.channel)

	defer func() {
		h.cmu.Lock()
		delete(h.peers, p.id)
		h.cmu.Unlock()

		conn.Close()
		slog.Info("Relay peer disconnected", "addr", remoteAddr, "id", p.id)
	}()

	if err := p.send(Frame{Type: FrameWelcome, Sender: p.id, Timestamp: time.Now().Unix()}); err != nil {
		slog.Warn("Failed to greet relay peer", "id", p.id, "error", err.Error())
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("Relay connection error", "addr", remoteAddr, "error", err)
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("Invalid JSON frame received", "error", err, "data", string(data))
			continue
		}
		if frame.Type != FrameRelay || frame.Data == "" {
			p.send(Frame{Type: FrameError, Data: fmt.Sprintf("unexpected frame type %q", frame.Type), Timestamp: time.Now().Unix()})
			continue
		}

		frame.Sender = p.id
		frame.Timestamp = time.Now().Unix()
		delivered := h.broadcast(p, frame)
		slog.Debug("Relay frame forwarded", "sender", p.id, "channel", p.channel, "peers", delivered, "size", len(frame.Data))
		if h.onRelay != nil {
			h.onRelay(frame)
		}
	}
}

func (h *Hub) broadcast(from *peer, frame Frame) int {
	h.cmu.RLock()
	targets := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		if p != from && p.channel == from.channel {
			targets = append(targets, p)
		}
	}
	h.cmu.RUnlock()

	sent := 0
	for _, p := range targets {
		if err := p.send(frame); err != nil {
			slog.Warn("There was an error relaying a frame to a peer", "peer", p.id, "error", err.Error())
			continue
		}
		sent++
	}
	return sent
}

func (h *Hub) Peers() int {
	h.cmu.RLock()
	defer h.cmu.RUnlock()
	return len(h.peers)
}

func (h *Hub) Shutdown() error {
	slog.Info("Shutting down relay hub", "addr", h.Addr)
	h.cmu.Lock()
	advertised := h.mdns
	h.mdns = nil
	h.closed = true
	h.cmu.Unlock()
	if advertised != nil {
		if err := advertised.Shutdown(); err != nil {
			slog.Warn("Failed to stop mDNS advertisement", "error", err.Error())
		}
	}
	return h.server.Close()
}
