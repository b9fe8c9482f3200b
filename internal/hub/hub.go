// Package hub рассылает снимки подключенным websocket-клиентам
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MCPumpkingz/polar-dashboard/internal/metrics"
	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

// DefaultWriteWait - дедлайн записи одному клиенту
const DefaultWriteWait = 200 * time.Millisecond

// Hub хранит активные соединения. Медленный клиент, не успевший принять
// сообщение за WriteWait, отключается.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
	last  []byte

	// gorilla/websocket допускает только одного писателя на соединение
	writeMu sync.Mutex

	upgrader  websocket.Upgrader
	writeWait time.Duration
	log       *zap.Logger
}

// New создает пустой hub
func New(log *zap.Logger) *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeWait: DefaultWriteWait,
		log:       log,
	}
}

// ServeWS обрабатывает GET /ws. Новый клиент сразу получает последний снимок.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	h.add(conn)
	defer func() {
		h.remove(conn)
		conn.Close()
	}()

	if last := h.lastPayload(); last != nil {
		h.writeMu.Lock()
		err := h.write(conn, last)
		h.writeMu.Unlock()
		if err != nil {
			return
		}
	}

	// Входящие сообщения не используются; чтение нужно для обработки close и ping
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Publish рассылает снимок всем клиентам в JSON
func (h *Hub) Publish(_ context.Context, s models.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	h.Broadcast(data)
	return nil
}

// Broadcast рассылает готовый JSON всем клиентам и запоминает его для новых подключений
func (h *Hub) Broadcast(b []byte) {
	h.mu.Lock()
	h.last = b
	h.mu.Unlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	for _, c := range h.snapshot() {
		if err := h.write(c, b); err != nil {
			h.log.Debug("Dropping websocket client", zap.String("remote_addr", c.RemoteAddr().String()), zap.Error(err))
			_ = c.Close()
			h.remove(c)
		}
	}
}

// Count возвращает число подключенных клиентов
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close отключает всех клиентов
func (h *Hub) Close() {
	for _, c := range h.snapshot() {
		h.writeMu.Lock()
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(h.writeWait))
		h.writeMu.Unlock()
		_ = c.Close()
		h.remove(c)
	}
}

func (h *Hub) write(c *websocket.Conn, b []byte) error {
	_ = c.SetWriteDeadline(time.Now().Add(h.writeWait))
	return c.WriteMessage(websocket.TextMessage, b)
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = true
	n := len(h.conns)
	h.mu.Unlock()
	metrics.LiveClients.Set(float64(n))
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()
	metrics.LiveClients.Set(float64(n))
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	return clients
}

func (h *Hub) lastPayload() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}
