package roomsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketTransport_DialsRoomPath(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotPath := make(chan string, 1)
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath <- r.URL.Path + "?" + r.URL.RawQuery
		gotAuth <- r.Header.Get("Authorization")
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, msg)
	}))
	defer srv.Close()

	header := http.Header{"X-Client": {"roomctl"}}
	tr := &WebsocketTransport{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws", Token: "user-token", Header: header}
	conn, err := tr.Dial(context.Background(), "room-1", "dj kay")
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "/api/v1/ws/room-1?username=dj+kay", <-gotPath)
	assert.Equal(t, "Bearer user-token", <-gotAuth)
	assert.Empty(t, header.Get("Authorization"))

	require.NoError(t, conn.WriteMessage([]byte(`{"type":"skip_song"}`)))
	echo, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"skip_song"}`, string(echo))
}

func TestWebsocketTransport_UnauthorizedIsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := &WebsocketTransport{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	_, err := tr.Dial(context.Background(), "room-1", "guest")
	assert.ErrorIs(t, err, ErrAuthFailed)
}
