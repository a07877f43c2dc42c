package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"walletledger/internal/infrastructure/metrics"
	"walletledger/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Client is one open connection. A user may hold several.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
	}
}

// Manager tracks open connections per user and delivers notifications to
// them. The Start loop owns registration; Send channels are only closed
// while holding the write lock.
type Manager struct {
	clients  map[string]map[*Client]struct{}
	register chan *Client
	done     chan struct{}
	mutex    sync.RWMutex
	logger   *zap.Logger
}

func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		clients:  make(map[string]map[*Client]struct{}),
		register: make(chan *Client),
		done:     make(chan struct{}),
		logger:   logger.OrNop(log).Named("websocket"),
	}
}

// Start runs the registration loop until ctx is done, then closes every
// connection.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		for {
			select {
			case client := <-m.register:
				m.mutex.Lock()
				conns, ok := m.clients[client.UserID]
				if !ok {
					conns = make(map[*Client]struct{})
					m.clients[client.UserID] = conns
				}
				conns[client] = struct{}{}
				m.mutex.Unlock()
				metrics.WebsocketConnections.Inc()
				m.logger.Debug("client registered", zap.String("user_id", client.UserID))

			case <-ctx.Done():
				m.mutex.Lock()
				for userID, conns := range m.clients {
					for client := range conns {
						close(client.Send)
						metrics.WebsocketConnections.Dec()
					}
					delete(m.clients, userID)
				}
				m.mutex.Unlock()
				return
			}
		}
	}()
}

// Add hands the client to the registration loop. It returns false once the
// manager has shut down.
func (m *Manager) Add(client *Client) bool {
	select {
	case m.register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) remove(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	conns, ok := m.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(m.clients, client.UserID)
	}
	close(client.Send)
	metrics.WebsocketConnections.Dec()
	m.logger.Debug("client unregistered", zap.String("user_id", client.UserID))
}

// SendToUser queues message on every connection of the user and returns
// how many accepted it. A connection whose buffer is full misses the message.
func (m *Manager) SendToUser(userID string, message []byte) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	delivered := 0
	for client := range m.clients[userID] {
		select {
		case client.Send <- message:
			delivered++
		default:
			m.logger.Warn("send buffer full, dropping message", zap.String("user_id", userID))
		}
	}
	return delivered
}

// Connected reports whether the user has at least one open connection.
func (m *Manager) Connected(userID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID]) > 0
}

// ReadPump reads until the connection fails, answering pings along the way.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.remove(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("connection closed", zap.String("user_id", c.UserID), zap.Error(err))
			}
			return
		}
		m.HandleClientMessage(c, message)
	}
}

// WritePump drains Send into the connection and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
