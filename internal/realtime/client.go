package realtime

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/predico/internal/contracts"
)

// client is a middleman between one websocket connection and the hub
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	caller        contracts.Caller
	authenticated bool
}

// accepts reports whether an event addressed to destination reaches c.
// Session managers see everything; others see market-wide events and
// events addressed to themselves.
func (c *client) accepts(destination string) bool {
	if destination == contracts.DestinationMarket {
		return true
	}
	if !c.authenticated {
		return false
	}
	return c.caller.IsSessionManager() || destination == c.caller.UserID.String()
}

// readPump drains control frames and unregisters on disconnect
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Debug("unexpected websocket close")
			}
			return
		}
	}
}

// writePump pushes hub messages and keepalive pings to the connection
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
