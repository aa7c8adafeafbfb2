// Package transport serves viewers over WebSocket. Each connected viewer gets
// a ViewerID, a single write goroutine and a JSON control channel for
// subscribing to views.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/hephaestus-engine/hephaestus/pkg/core"
	"github.com/hephaestus-engine/hephaestus/pkg/streaming"
)

// Controller receives viewer control requests.
type Controller interface {
	Subscribe(view core.ViewID, viewer core.ViewerID) error
	Unsubscribe(view core.ViewID, viewer core.ViewerID) error
	DropViewer(viewer core.ViewerID)
}

// Hub accepts viewer connections and implements streaming.Sender.
type Hub struct {
	mu     sync.RWMutex
	conns  map[core.ViewerID]*connection
	ctrl   Controller
	closed bool

	protocol string
	upgrader ws.Upgrader
	logger   *slog.Logger
}

// NewHub returns a hub announcing protocol to every viewer.
func NewHub(protocol string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:    make(map[core.ViewerID]*connection),
		protocol: protocol,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// SetController sets the receiver of subscribe and unsubscribe requests.
// Requests arriving before it is set are rejected.
func (h *Hub) SetController(c Controller) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctrl = c
}

func (h *Hub) controller() Controller {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctrl
}

// ServeHTTP upgrades the request and serves the viewer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := core.ViewerID(uuid.NewString())
	c := newConnection(id, conn, h.logger)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.close()
		return
	}
	h.conns[id] = c
	h.mu.Unlock()

	h.logger.Info("Viewer connected", "viewer", id, "remote", r.RemoteAddr)

	go c.writeLoop()
	if data, err := marshalEnvelope(streaming.TypeWelcome, streaming.WelcomePayload{Viewer: id, Protocol: h.protocol}); err == nil {
		_ = c.send(streaming.Message{Data: data})
	}

	c.readLoop(func(data []byte) { h.handleControl(c, data) })

	h.disconnect(id)
}

// disconnect forgets the viewer, closes its socket and drops its subscriptions.
func (h *Hub) disconnect(id core.ViewerID) {
	h.mu.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	ctrl := h.ctrl
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	if ctrl != nil {
		ctrl.DropViewer(id)
	}
	h.logger.Info("Viewer disconnected", "viewer", id)
}

// handleControl processes one control frame and acknowledges it.
func (h *Hub) handleControl(c *connection, data []byte) {
	var msg streaming.ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.ack(c, streaming.AckMessage{Type: streaming.TypeAck, For: streaming.TypeError, Error: "malformed control message"})
		return
	}

	ack := streaming.AckMessage{Type: streaming.TypeAck, For: msg.Type, View: msg.View}
	ctrl := h.controller()

	var err error
	switch {
	case ctrl == nil:
		err = errors.New("engine not ready")
	case msg.Type == streaming.TypeSubscribe:
		err = ctrl.Subscribe(msg.View, c.id)
	case msg.Type == streaming.TypeUnsubscribe:
		err = ctrl.Unsubscribe(msg.View, c.id)
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}
	if err != nil {
		c.logger.Debug("Control request rejected", "type", msg.Type, "view", msg.View, "error", err)
		ack.Error = err.Error()
	}
	h.ack(c, ack)
}

func (h *Hub) ack(c *connection, ack streaming.AckMessage) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := c.send(streaming.Message{Data: data}); err != nil {
		c.logger.Debug("Failed to queue ack", "error", err)
	}
}

// Send queues msgs for viewer. It never blocks: a viewer that is gone or
// whose buffer is full gets an error, which the engine treats as a failed
// delivery.
func (h *Hub) Send(viewer core.ViewerID, msgs ...streaming.Message) error {
	h.mu.RLock()
	c, ok := h.conns[viewer]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownViewer, viewer)
	}
	return c.send(msgs...)
}

// Viewers returns the connected viewers, sorted.
func (h *Hub) Viewers() []core.ViewerID {
	h.mu.RLock()
	out := make([]core.ViewerID, 0, len(h.conns))
	for id := range h.conns {
		out = append(out, id)
	}
	h.mu.RUnlock()

	slices.Sort(out)
	return out
}

// Close disconnects every viewer and rejects new connections.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	return nil
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
