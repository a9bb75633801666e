package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"alert-engine/internal/models"
)

const maxFeedConnections = 50

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub broadcasts created alerts to connected dashboard clients.
type Hub struct {
	mutex       sync.Mutex
	connections map[*websocket.Conn]bool
	logger      *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// AlertCreated implements the scheduler's AlertSink: every created alert is
// pushed to all connected clients.
func (h *Hub) AlertCreated(_ context.Context, alert models.AlertRecord) {
	message, err := json.Marshal(alert)
	if err != nil {
		h.logger.Errorf("Failed to marshal alert for feed: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.connections {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Errorf("Failed to push alert to feed client: %v", err)
			conn.Close()
			delete(h.connections, conn)
		}
	}
}

func (h *Hub) addConnection(conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.connections) >= maxFeedConnections {
		h.logger.Warnf("Max feed connections reached (%d)", maxFeedConnections)
		return false
	}
	h.connections[conn] = true
	h.logger.Infof("Feed client connected (total: %d)", len(h.connections))
	return true
}

func (h *Hub) removeConnection(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.connections[conn]; ok {
		delete(h.connections, conn)
		h.logger.Infof("Feed client disconnected (remaining: %d)", len(h.connections))
	}
}

// ServeFeed upgrades the request and keeps the connection registered until
// the client goes away.
func (h *Hub) ServeFeed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Feed upgrade failed: %v", err)
		return
	}
	if !h.addConnection(conn) {
		conn.Close()
		return
	}

	go func() {
		defer func() {
			h.removeConnection(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
