package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mt5_dashboard/internal/dashboard"
	"mt5_dashboard/pkg/models"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Event - сообщение, которое получает websocket клиент
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	EventSnapshot     = "snapshot"
	EventNotification = "notification"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub рассылает снимки панели и уведомления всем websocket клиентам
type Hub struct {
	logger *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan Event
	clients    map[*wsClient]struct{}
	done       chan struct{}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Event
}

// NewHub создает hub, рассылка начинается после Run
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger.With(slog.String("component", "ws")),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan Event, 64),
		clients:    make(map[*wsClient]struct{}),
		done:       make(chan struct{}),
	}
}

// Run обслуживает клиентов до отмены контекста
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}

			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Debug("Client connected", slog.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Debug("Client disconnected", slog.Int("clients", len(h.clients)))
			}

		case event := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					// медленный клиент отключается, чтобы не держать hub
					delete(h.clients, client)
					close(client.send)
					h.logger.Warn("Slow websocket client dropped")
				}
			}
		}
	}
}

// PublishSnapshot ставит снимок в очередь рассылки, не блокируясь
func (h *Hub) PublishSnapshot(snap dashboard.Snapshot) {
	h.enqueue(Event{Type: EventSnapshot, Data: snap})
}

// Notify рассылает уведомление клиентам
func (h *Hub) Notify(_ context.Context, n models.Notification) error {
	h.enqueue(Event{Type: EventNotification, Data: n})

	return nil
}

func (h *Hub) enqueue(event Event) {
	select {
	case h.broadcast <- event:
	default:
		// снимок уйдет со следующим изменением, уведомление потеряно насовсем
		if event.Type == EventNotification {
			h.logger.Warn("Broadcast queue full, notification dropped", slog.Any("notification", event.Data))
			return
		}

		h.logger.Debug("Broadcast queue full, event dropped", slog.String("type", event.Type))
	}
}

// HandleWebSocket подключает клиента и сразу отправляет ему текущий снимок
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade websocket", slog.Any("error", err))
		return
	}

	client := &wsClient{
		hub:  h.hub,
		conn: conn,
		send: make(chan Event, sendBuffer),
	}

	client.send <- Event{Type: EventSnapshot, Data: h.session.Snapshot()}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump следит за соединением, входящие сообщения игнорируются
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}

		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket error", slog.Any("error", err))
			}

			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(event); err != nil {
				c.hub.logger.Debug("Write error", slog.Any("error", err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
