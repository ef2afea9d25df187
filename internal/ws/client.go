package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/beatbus/room-sync/pkg/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the join_room message after the upgrade.
	joinWait = 10 * time.Second

	maxMessageSize = 8 * 1024
	sendBuffer     = 256
	commandTimeout = 10 * time.Second
)

// CommandHandler applies a command sent on a user's channel.
type CommandHandler interface {
	HandleCommand(ctx context.Context, roomID, username string, cmd protocol.Command) error
}

type outbound struct {
	data  []byte
	close bool
}

// Client is one open event channel. Only writePump writes to conn once the
// join has been accepted.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	roomID   string
	username string
	send     chan outbound

	done      chan struct{}
	closeOnce sync.Once
	log       *logrus.Entry
}

func newClient(hub *Hub, conn *websocket.Conn, roomID, username string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		roomID:   roomID,
		username: username,
		send:     make(chan outbound, sendBuffer),
		done:     make(chan struct{}),
		log:      logrus.WithFields(logrus.Fields{"room_id": roomID, "user": username}),
	}
}

// enqueue queues a frame. A client that cannot keep up is disconnected.
func (c *Client) enqueue(data []byte, closeAfter bool) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- outbound{data: data, close: closeAfter}:
	default:
		c.log.Warn("Send buffer full, dropping client")
		c.shutdown()
	}
}

func (c *Client) sendEvent(ev protocol.Event) {
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		c.log.WithError(err).Error("Failed to encode event")
		return
	}
	c.enqueue(frame, false)
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump applies the client's commands in the order they arrive. Errors
// are reported to this client only.
func (c *Client) readPump(handler CommandHandler) {
	defer c.shutdown()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.WithError(err).Warn("WebSocket read error")
			} else {
				c.log.Debug("WebSocket connection closed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		cmd, err := protocol.DecodeCommand(message)
		if err != nil {
			c.log.WithError(err).Debug("Malformed command")
			c.sendEvent(protocol.Error{Code: protocol.CodeBadRequest, Message: err.Error()})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		err = handler.HandleCommand(ctx, c.roomID, c.username, cmd)
		cancel()
		if err != nil {
			c.log.WithError(err).WithField("type", cmd.CommandType()).Debug("Command rejected")
			c.sendEvent(errorEvent(err))
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("writePump exited")
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				c.log.WithError(err).Warn("Failed to write message to websocket")
				return
			}
			if msg.close {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				c.shutdown()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.WithError(err).Warn("Failed to send ping message")
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}
