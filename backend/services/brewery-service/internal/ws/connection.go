package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxMessageSize = 64 * 1024

// MessageProcessor handles one raw sensor payload and reports whether it was stored.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, raw []byte) bool
}

// Reply is written back for every received frame.
type Reply struct {
	Status string `json:"status"`
	Type   string `json:"type,omitempty"`
}

// Connection represents an active device WebSocket connection.
type Connection struct {
	deviceID     string
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	logger       *zap.Logger
	processor    MessageProcessor
	writeTimeout time.Duration
	pongWait     time.Duration
	onClose      func(conn *Connection)
}

// NewConnection builds connection wrapper. The read deadline is extended by pongWait on
// every pong, so pongWait must exceed the manager's ping interval.
func NewConnection(deviceID string, ws *websocket.Conn, processor MessageProcessor, writeTimeout, pongWait time.Duration, logger *zap.Logger, onClose func(*Connection)) *Connection {
	return &Connection{
		deviceID:     deviceID,
		ws:           ws,
		send:         make(chan []byte, 16),
		done:         make(chan struct{}),
		logger:       logger,
		processor:    processor,
		writeTimeout: writeTimeout,
		pongWait:     pongWait,
		onClose:      onClose,
	}
}

// DeviceID returns identifier.
func (c *Connection) DeviceID() string {
	return c.deviceID
}

// Start launches read/write pumps and blocks until the connection ends.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.Close()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("device stream closed", zap.String("device_id", c.deviceID), zap.Error(err))
			return
		}
		if ctx.Err() != nil {
			return
		}

		reply := c.handle(ctx, message)
		data, err := json.Marshal(reply)
		if err != nil {
			c.logger.Warn("failed to encode reply", zap.String("device_id", c.deviceID), zap.Error(err))
			continue
		}
		c.Send(data)
	}
}

func (c *Connection) handle(ctx context.Context, message []byte) Reply {
	var payload map[string]interface{}
	if err := json.Unmarshal(message, &payload); err != nil || payload == nil {
		// let the processor log and count the malformed frame
		c.processor.ProcessMessage(ctx, message)
		return Reply{Status: "error"}
	}

	tag, _ := payload["type"].(string)
	if id, ok := payload["device_id"].(string); !ok || id == "" {
		payload["device_id"] = c.deviceID
		if enriched, err := json.Marshal(payload); err == nil {
			message = enriched
		}
	}

	if !c.processor.ProcessMessage(ctx, message) {
		return Reply{Status: "error", Type: tag}
	}
	return Reply{Status: "success", Type: tag}
}

func (c *Connection) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Send enqueues a message for writing. Messages to a closed connection are dropped.
func (c *Connection) Send(msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping outgoing message, buffer full", zap.String("device_id", c.deviceID))
	}
}

// Ping sends a ping control frame. It is safe to call from other goroutines.
func (c *Connection) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.writeTimeout))
}

func (c *Connection) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// Close ends the connection once and notifies the owner.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeTimeout))
		_ = c.ws.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}
