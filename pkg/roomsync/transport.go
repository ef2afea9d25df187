package roomsync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// the server pings every 54s
	readWait = 60 * time.Second
)

// Conn is one open event channel. WriteMessage is only called from a single
// goroutine; Close may be called from any.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Transport opens event channels scoped to (roomID, username).
type Transport interface {
	Dial(ctx context.Context, roomID, username string) (Conn, error)
}

// WebsocketTransport dials URL/<roomID>?username=<username>. Token is the
// user token the server binds the channel's identity to; it is sent as a
// bearer Authorization header.
type WebsocketTransport struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
	Header http.Header
}

func (t *WebsocketTransport) Dial(ctx context.Context, roomID, username string) (Conn, error) {
	base, err := url.Parse(t.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse websocket url: %w", err)
	}
	u := base.JoinPath(url.PathEscape(roomID))
	q := u.Query()
	q.Set("username", username)
	u.RawQuery = q.Encode()

	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := t.Header.Clone()
	if t.Token != "" {
		if header == nil {
			header = http.Header{}
		}
		header.Set("Authorization", "Bearer "+t.Token)
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: server answered %s", ErrAuthFailed, resp.Status)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", u.Redacted(), err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}
