package camera

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/scanner"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 * 1024 // frames arrive as base64 JPEG
)

type inboundMessage struct {
	Type        string `json:"type"`
	Data        string `json:"data,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

type outboundMessage struct {
	Type   string                   `json:"type"`
	Result *scanner.FrameResult     `json:"result,omitempty"`
	Stats  *scanner.ProcessingStats `json:"stats,omitempty"`
}

// Conn is one camera feed socket: frames flow up, results and stats flow
// back down. Outbound messages are dropped rather than blocking when the
// client cannot keep up.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	OnFrame   func(data []byte, width, height int)
	OnCapture func(instruction string)

	send chan outboundMessage

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		ws:     ws,
		logger: logger.With("component", "camera-conn"),
		send:   make(chan outboundMessage, 32),
		done:   make(chan struct{}),
	}
}

func (c *Conn) SendResult(result scanner.FrameResult) {
	c.enqueue(outboundMessage{Type: "result", Result: &result})
}

func (c *Conn) SendStats(stats scanner.ProcessingStats) {
	c.enqueue(outboundMessage{Type: "stats", Stats: &stats})
}

func (c *Conn) enqueue(msg outboundMessage) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	select {
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping message", "type", msg.Type)
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	_ = c.ws.Close()
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Run starts the write pump and blocks reading inbound messages until the
// socket closes.
func (c *Conn) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn("bad feed message", "error", err)
			continue
		}

		switch msg.Type {
		case "frame":
			data, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				c.logger.Warn("bad frame encoding", "error", err)
				continue
			}
			if c.OnFrame != nil {
				c.OnFrame(data, msg.Width, msg.Height)
			}
		case "capture":
			if c.OnCapture != nil {
				c.OnCapture(msg.Instruction)
			}
		default:
			c.logger.Debug("unknown feed message type", "type", msg.Type)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("marshal outbound message", "error", err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
