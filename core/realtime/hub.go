package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"voxpro/logger"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8192
	sendBuffer     = 64
)

// Client WebSocket 客户端
type Client struct {
	ID    string
	Topic string
	Hub   *Hub
	Conn  *websocket.Conn
	Send  chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend queues data unless the buffer is full or the client is gone.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// NewClient wraps an upgraded connection. The client is not registered yet.
func NewClient(hub *Hub, conn *websocket.Conn, topic string) *Client {
	return &Client{
		ID:    uuid.NewString(),
		Topic: topic,
		Hub:   hub,
		Conn:  conn,
		Send:  make(chan []byte, sendBuffer),
	}
}

type broadcastMessage struct {
	topic   string
	message []byte
}

// Hub WebSocket 管理中心，客户端按主题（表名或 "console"）分组
type Hub struct {
	topics map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage
	done       chan struct{}
	stopOnce   sync.Once

	mu   sync.RWMutex
	subs []Subscription

	// OnCountChange, when set, is called with the total client count after
	// every register or unregister.
	OnCountChange func(total int)
}

func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Attach forwards every change on the given tables to clients of the
// matching topic.
func (h *Hub) Attach(ctx context.Context, n Notifier, tables ...string) error {
	for _, table := range tables {
		sub, err := n.Subscribe(ctx, table, func(ev ChangeEvent) {
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warn("序列化变更事件失败", logger.ErrorField(err))
				return
			}
			h.Broadcast(ev.Table, data)
		})
		if err != nil {
			return err
		}
		h.mu.Lock()
		h.subs = append(h.subs, sub)
		h.mu.Unlock()
	}
	return nil
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.topics[client.Topic] == nil {
				h.topics[client.Topic] = make(map[*Client]bool)
			}
			h.topics[client.Topic][client] = true
			h.mu.Unlock()
			h.countChanged()
			logger.Debug("client registered", logger.String("topic", client.Topic), logger.String("client", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()
			h.countChanged()

		case msg := <-h.broadcast:
			h.broadcastToTopic(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub 并释放通知订阅
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		subs := h.subs
		h.subs = nil
		h.mu.Unlock()
		for _, sub := range subs {
			sub.Close()
		}
		close(h.done)
	})
}

// removeClient 移除客户端（需要持有锁）
func (h *Hub) removeClient(client *Client) {
	if clients, ok := h.topics[client.Topic]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			client.closeSend()
			if len(clients) == 0 {
				delete(h.topics, client.Topic)
			}
		}
	}
}

func (h *Hub) broadcastToTopic(msg broadcastMessage) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.topics[msg.topic]))
	for client := range h.topics[msg.topic] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.trySend(msg.message) {
			// 发送缓冲区满，移除客户端
			go h.Unregister(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.topics {
		for client := range clients {
			client.closeSend()
		}
	}
	h.topics = make(map[string]map[*Client]bool)
}

func (h *Hub) countChanged() {
	if h.OnCountChange != nil {
		h.OnCountChange(h.ClientCount())
	}
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a message for every client of topic.
func (h *Hub) Broadcast(topic string, message []byte) {
	select {
	case h.broadcast <- broadcastMessage{topic: topic, message: message}:
	case <-h.done:
	}
}

// ClientCount 获取客户端总数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, clients := range h.topics {
		total += len(clients)
	}
	return total
}

// TopicCount 获取主题客户端数量
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// ========== Client 方法 ==========

// ReadPump reads until the connection fails or ctx ends. Every text frame
// goes to handler; a nil handler discards input.
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, c *Client, message []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					logger.ErrorField(err),
					logger.String("topic", c.Topic),
					logger.String("client", c.ID))
			}
			return
		}
		if handler != nil {
			handler(ctx, c, message)
		}
	}
}

// WritePump 写入消息循环
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
				// Hub 关闭了通道
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

// SendJSON queues v for this client only; a full buffer drops the message.
func (c *Client) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !c.trySend(data) {
		logger.Warn("client send dropped", logger.String("client", c.ID))
	}
	return nil
}
