package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"zvision-console/internal/hub"
	"zvision-console/internal/middleware"
)

// PushHandler streams session and detection events to the signed-in browser.
type PushHandler struct {
	Hub *hub.Hub
}

type clientMessage struct {
	Type string `json:"type"`
}

// Origin checking stays on the upgrader default: same host only.
var upgrader = websocket.Upgrader{}

type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

func (h *PushHandler) Serve(c *gin.Context) {
	sid, ok := middleware.SessionIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not signed in"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		middleware.LoggerFromContext(c).Debug("websocket upgrade", zap.Error(err))
		return
	}

	writer := &wsWriter{conn: ws}
	conn := &hub.Connection{SessionID: sid, Writer: writer}
	h.Hub.Register(conn)
	defer func() {
		h.Hub.Unregister(conn)
		_ = ws.Close()
	}()

	ws.SetReadLimit(64 * 1024)
	const pongWait = 60 * time.Second
	const writeWait = 10 * time.Second
	pingPeriod := (pongWait * 9) / 10

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writer.mu.Lock()
				err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				writer.mu.Unlock()
				if err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			// Client pings also keep the read deadline alive.
			ws.SetReadDeadline(time.Now().Add(pongWait))
			out, _ := json.Marshal(hub.Message{Type: "pong"})
			_ = writer.Write(out)
		}
	}
}
