package chathub

import (
	"chatrelay/backend/internal/config"
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketClient pumps frames between one websocket connection and its session.
type WebSocketClient struct {
	Session *Session
	Conn    *websocket.Conn
	Hub     *ManagerService
}

// Run starts the read and write pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

func (c *WebSocketClient) writeClose() {
	code, reason := c.Session.CloseStatus()
	_ = c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(config.WriteWait))
}

// readPump handles inbound frames strictly one after another, then tears the session down.
func (c *WebSocketClient) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Session.Close(websocket.CloseNormalClosure, "")
		c.Hub.Registry.Disconnect(context.Background(), c.Session)
		c.writeClose()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("read failed", zap.String("user", c.Session.UserID()), zap.Error(err))
			}
			return
		}
		if !c.Hub.Router.Dispatch(ctx, c.Session, message) {
			return
		}
	}
}

// writePump drains the mailbox into the connection and keeps it alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame := <-c.Session.Mailbox():
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Session.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}

		case <-c.Session.Done():
			c.flush()
			c.writeClose()
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Session.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

// flush writes whatever is still queued so notices sent before a close reach the client.
func (c *WebSocketClient) flush() {
	for {
		select {
		case frame := <-c.Session.Mailbox():
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
