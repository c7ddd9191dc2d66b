package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nao1215/phishguard/internal/coordinator"
	"github.com/nao1215/phishguard/internal/probe"
)

// Envelope types pushed on the events stream.
const (
	// EnvelopeScanCompleted carries a coordinator.Event.
	EnvelopeScanCompleted = coordinator.EventScanCompleted

	// EnvelopePhishingAction carries a probe.Warning the page runtime must
	// act on.
	EnvelopePhishingAction = "phishing_action"
)

const (
	// clientBuffer is the number of envelopes queued per websocket client.
	clientBuffer = 32

	writeTimeout = 10 * time.Second
)

// Envelope is one message on the events stream.
type Envelope struct {
	// Type is EnvelopeScanCompleted or EnvelopePhishingAction.
	Type string `json:"type"`

	// Event is set for EnvelopeScanCompleted.
	Event *coordinator.Event `json:"event,omitempty"`

	// Warning is set for EnvelopePhishingAction.
	Warning *probe.Warning `json:"warning,omitempty"`
}

// wsClient is one connected events stream.
type wsClient struct {
	conn *websocket.Conn
	send chan Envelope
}

// Hub fans envelopes out to websocket clients. It implements probe.Warner
// so policy actions reach the page runtime.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool

	writers sync.WaitGroup
}

// NewHub creates a Hub. Only same-host, extension and origin-less
// connections are accepted.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		logger:   logger,
		clients:  make(map[*wsClient]struct{}),
	}
}

// checkOrigin accepts browser extensions, local pages and clients that send
// no Origin header.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	switch {
	case origin == "":
		return true
	case strings.HasPrefix(origin, "chrome-extension://"), strings.HasPrefix(origin, "moz-extension://"):
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues env for every client. Clients that are not keeping up
// lose the envelope.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- env:
		default:
			h.logger.Warn("events client is not keeping up, dropping message", "remote", cl.conn.RemoteAddr().String(), "type", env.Type)
		}
	}
}

// Warn implements probe.Warner.
func (h *Hub) Warn(_ context.Context, w probe.Warning) error {
	h.Broadcast(Envelope{Type: EnvelopePhishingAction, Warning: &w})
	return nil
}

// Pump forwards coordinator events until events is closed or ctx is done.
func (h *Hub) Pump(ctx context.Context, events <-chan coordinator.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Broadcast(Envelope{Type: EnvelopeScanCompleted, Event: &ev})
		}
	}
}

// ServeWS upgrades the request and streams envelopes until the client
// disconnects or the hub is closed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	cl := &wsClient{conn: conn, send: make(chan Envelope, clientBuffer)}
	if !h.register(cl) {
		_ = conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // closing anyway
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeTimeout))
		_ = conn.Close() //nolint:errcheck // nothing to report
		return
	}
	h.logger.Debug("events client connected", "remote", conn.RemoteAddr().String())

	go h.write(cl)

	// The stream is one-way; reading only detects the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(cl)
	h.logger.Debug("events client disconnected", "remote", conn.RemoteAddr().String())
}

// write drains cl.send onto the connection.
func (h *Hub) write(cl *wsClient) {
	defer h.writers.Done()
	defer cl.conn.Close() //nolint:errcheck // nothing to report

	for env := range cl.send {
		if err := cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := cl.conn.WriteJSON(env); err != nil {
			h.logger.Debug("failed to write to events client", "error", err)
			h.unregister(cl)
			return
		}
	}
	_ = cl.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // best effort
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

// register adds cl and accounts for its writer, so Close cannot miss it.
func (h *Hub) register(cl *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	h.writers.Add(1)
	return true
}

// unregister removes cl and closes its queue. It is idempotent.
func (h *Hub) unregister(cl *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}

// Close disconnects every client and waits for their writers.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()

	h.writers.Wait()
}
