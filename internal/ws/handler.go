package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/beatbus/room-sync/internal/auth"
	"github.com/beatbus/room-sync/internal/room"
	"github.com/beatbus/room-sync/pkg/jwt"
	"github.com/beatbus/room-sync/pkg/protocol"
)

var errJoinExpected = errors.New("first message must be join_room")

// Rooms is the room authority behind the channel.
type Rooms interface {
	CommandHandler
	Join(ctx context.Context, roomID, password, username string) error
	Leave(ctx context.Context, roomID, username string) error
}

type Handler struct {
	rooms    Rooms
	hub      *Hub
	signer   *jwt.Signer
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewHandler accepts upgrades from allowedOrigins, from any origin when the
// list is empty or holds "*", and from clients that send no Origin header.
// Every channel is bound to the username of the user token it presents.
func NewHandler(rooms Rooms, hub *Hub, signer *jwt.Signer, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		rooms:  rooms,
		hub:    hub,
		signer: signer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
		log: logrus.WithField("component", "ws"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws/:roomId", auth.RequireUser(h.signer), h.HandleWebSocket)
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	roomID := c.Param("roomId")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
		return
	}
	username := c.GetString("username")
	if username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}
	if q := c.Query("username"); q != "" && q != username {
		c.JSON(http.StatusForbidden, gin.H{"error": "Token does not belong to this username"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	join, err := readJoin(conn)
	if err != nil {
		reject(conn, protocol.Error{Code: protocol.CodeBadRequest, Message: err.Error()})
		return
	}
	if join.Username != "" && join.Username != username {
		reject(conn, protocol.Error{Code: protocol.CodeAuthFailed, Message: "username does not match the token"})
		return
	}
	if join.RoomID != "" && join.RoomID != roomID {
		reject(conn, protocol.Error{Code: protocol.CodeBadRequest, Message: "invalid join_room"})
		return
	}

	// registered before joining so no event published after the snapshot is missed
	client := newClient(h.hub, conn, roomID, username)
	h.hub.register(client)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	err = h.rooms.Join(ctx, roomID, join.RoomPassword, username)
	cancel()
	if err != nil {
		h.hub.unregister(client)
		client.log.WithError(err).Info("Join rejected")
		reject(conn, errorEvent(err))
		return
	}
	h.hub.evict(client)

	go client.writePump()
	client.readPump(h.rooms)

	if h.hub.unregister(client) {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := h.rooms.Leave(ctx, roomID, username); err != nil {
			client.log.WithError(err).Warn("Failed to leave room")
		}
	}
}

func readJoin(conn *websocket.Conn) (protocol.JoinRoom, error) {
	_ = conn.SetReadDeadline(time.Now().Add(joinWait))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return protocol.JoinRoom{}, fmt.Errorf("failed to read join: %w", err)
	}
	cmd, err := protocol.DecodeCommand(data)
	if err != nil {
		return protocol.JoinRoom{}, err
	}
	join, ok := cmd.(protocol.JoinRoom)
	if !ok {
		return protocol.JoinRoom{}, errJoinExpected
	}
	return join, nil
}

// reject answers a failed join with an error event and a policy-violation
// close. It runs before writePump starts.
func reject(conn *websocket.Conn, ev protocol.Error) {
	defer conn.Close()
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ev.Code))
}

func errorEvent(err error) protocol.Error {
	return room.ErrorEvent(err)
}
