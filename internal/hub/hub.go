// Package hub fans console events out to open websocket connections, grouped by console
// session.
package hub

import (
	"encoding/json"
	"sync"
)

// sendBuffer is how many frames may queue for one connection before it is dropped.
const sendBuffer = 16

type Writer interface {
	Write(message []byte) error
	Close() error
}

// Connection is one open socket. Frames are written by its own goroutine, so a slow
// browser never holds up the request that published the frame.
type Connection struct {
	SessionID string
	Writer    Writer

	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func (c *Connection) stop() {
	if c.done == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Connection) pump(h *Hub) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.Writer.Write(msg); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// Message is the JSON frame pushed to browsers.
type Message struct {
	Type     string `json:"type"`
	CameraID string `json:"cameraId,omitempty"`
	Body     any    `json:"body,omitempty"`
}

type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	conn.send = make(chan []byte, sendBuffer)
	conn.done = make(chan struct{})

	h.mu.Lock()
	if h.connections[conn.SessionID] == nil {
		h.connections[conn.SessionID] = make(map[*Connection]struct{})
	}
	h.connections[conn.SessionID][conn] = struct{}{}
	h.mu.Unlock()

	go conn.pump(h)
}

func (h *Hub) Unregister(conn *Connection) {
	conn.stop()

	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.SessionID]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.SessionID)
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.connections {
		n += len(set)
	}
	return n
}

// Broadcast sends message to every connection of one session.
func (h *Hub) Broadcast(sessionID string, message []byte) {
	h.mu.RLock()
	set := h.connections[sessionID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	h.deliver(conns, message)
}

// BroadcastAll sends message to every open connection.
func (h *Hub) BroadcastAll(message []byte) {
	h.mu.RLock()
	var conns []*Connection
	for _, set := range h.connections {
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(conns, message)
}

// Publish encodes msg and sends it to one session, or to everyone when sessionID is empty.
func (h *Hub) Publish(sessionID string, msg Message) error {
	out, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if sessionID == "" {
		h.BroadcastAll(out)
	} else {
		h.Broadcast(sessionID, out)
	}
	return nil
}

// deliver queues message on every connection. A connection whose queue is full is
// dropped.
func (h *Hub) deliver(conns []*Connection, message []byte) {
	for _, c := range conns {
		select {
		case c.send <- message:
		default:
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Connection) {
	h.Unregister(c)
	_ = c.Writer.Close()
}
