package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType 事件类型
type EventType string

const (
	DatasetUploaded EventType = "dataset_uploaded"
	ModelTrained    EventType = "model_trained"
	ModelReloaded   EventType = "model_reloaded"
	PredictionMade  EventType = "prediction"
	Heartbeat       EventType = "heartbeat"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 64
)

// Message 推送给客户端的事件
type Message struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	ID        string          `json:"id"`
}

// ClientMessage 客户端消息
type ClientMessage struct {
	Type  string    `json:"type"` // subscribe, unsubscribe, ping
	Topic EventType `json:"topic"`
}

// Client WebSocket客户端
type Client struct {
	conn *websocket.Conn
	send chan []byte
	id   string

	mu            sync.Mutex
	subscriptions map[EventType]bool // 为空时接收所有事件
}

func (c *Client) wants(t EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[t]
}

type outbound struct {
	eventType EventType
	payload   []byte
}

// Stats 事件中心统计
type Stats struct {
	ConnectedClients int       `json:"connected_clients"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesDropped  int64     `json:"messages_dropped"`
	StartTime        time.Time `json:"start_time"`
}

// Hub 事件中心，向所有连接的客户端广播服务事件
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	sent      atomic.Int64
	dropped   atomic.Int64
	startTime time.Time
}

// NewHub 创建事件中心
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:    logger.Named("hub"),
		startTime: time.Now(),
	}
}

// Run 运行事件循环，直到ctx结束
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", zap.String("client_id", client.id), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", zap.String("client_id", client.id), zap.Int("total", total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.eventType) {
					continue
				}
				select {
				case client.send <- msg.payload:
					h.sent.Add(1)
				default:
					// 慢客户端直接断开
					close(client.send)
					delete(h.clients, client)
					h.dropped.Add(1)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped")
			return
		}
	}
}

// HandleWebSocket 处理WebSocket连接
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            uuid.NewString(),
		subscriptions: make(map[EventType]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump(h.logger)
	go client.readPump(h)
}

// Publish 广播事件。队列已满时丢弃，不阻塞调用方
func (h *Hub) Publish(eventType EventType, data interface{}) {
	payload, err := encode(eventType, data)
	if err != nil {
		h.logger.Error("encode event failed", zap.String("type", string(eventType)), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{eventType: eventType, payload: payload}:
	default:
		h.dropped.Add(1)
		h.logger.Warn("event queue is full, dropping event", zap.String("type", string(eventType)))
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetStats 获取统计信息
func (h *Hub) GetStats() Stats {
	return Stats{
		ConnectedClients: h.ClientCount(),
		MessagesSent:     h.sent.Load(),
		MessagesDropped:  h.dropped.Load(),
		StartTime:        h.startTime,
	}
}

func encode(eventType EventType, data interface{}) ([]byte, error) {
	msg := Message{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ID:        uuid.NewString(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

// writePump WebSocket写入泵
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write failed", zap.String("client_id", c.id), zap.Error(err))
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

// readPump WebSocket读取泵
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid client message", zap.String("client_id", c.id), zap.Error(err))
			continue
		}
		c.handleClientMessage(h, msg)
	}
}

// handleClientMessage 处理订阅请求，ping回复一次心跳
func (c *Client) handleClientMessage(h *Hub, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		c.subscriptions[msg.Topic] = true
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		delete(c.subscriptions, msg.Topic)
		c.mu.Unlock()
	case "ping":
		payload, err := encode(Heartbeat, map[string]string{"status": "alive"})
		if err != nil {
			return
		}
		h.mu.RLock()
		defer h.mu.RUnlock()
		if !h.clients[c] {
			return
		}
		select {
		case c.send <- payload:
		default:
		}
	}
}
