package room

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/beatbus/room-sync/internal/auth"
	"github.com/beatbus/room-sync/pkg/jwt"
	"github.com/beatbus/room-sync/pkg/models"
	"github.com/beatbus/room-sync/pkg/protocol"
	"github.com/beatbus/room-sync/pkg/redis"
)

type Handler struct {
	service *Service
	signer  *jwt.Signer
	tokens  *redis.TokenStore
}

func NewHandler(service *Service, signer *jwt.Signer) *Handler {
	return &Handler{service: service, signer: signer, tokens: service.tokens}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	host := auth.RequireHost(h.signer, h.tokens)

	rooms := r.Group("/rooms")
	{
		rooms.POST("", auth.RequireUser(h.signer), h.createRoom)
		rooms.GET("/:roomId", h.joinCheck)
		rooms.GET("/:roomId/state", h.getState)
		rooms.PUT("/:roomId", host, h.updateSettings)
		rooms.DELETE("/:roomId", host, h.deleteRoom)
	}

	queues := r.Group("/queues")
	{
		queues.GET("/:roomId/playlist", h.getQueue)
		queues.POST("/:roomId/playlist", h.appendSong)
		queues.PUT("/:roomId/playlist", host, h.reorder)
	}

	metrics := r.Group("/metrics")
	{
		metrics.GET("/:roomId", h.getMetrics)
		metrics.GET("/:roomId/history", h.getHistory)
		metrics.POST("/:roomId/playlist/send", host, h.sendPlaylist)
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(StatusCode(err), gin.H{"error": ErrorEvent(err).Message})
}

func (h *Handler) createRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.CreateRoom(c.Request.Context(), c.GetString("username"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) joinCheck(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	state, member, err := h.service.JoinCheck(c.Request.Context(), c.Param("roomId"), c.Query("roomPassword"), username)
	if err != nil {
		fail(c, err)
		return
	}
	if member {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) getState(c *gin.Context) {
	state, err := h.service.Snapshot(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) updateSettings(c *gin.Context) {
	var settings models.RoomSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.service.UpdateSettings(c.Request.Context(), c.Param("roomId"), c.GetString("username"), settings)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) deleteRoom(c *gin.Context) {
	if err := h.service.DeleteRoom(c.Request.Context(), c.Param("roomId")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getQueue(c *gin.Context) {
	playlist, err := h.service.Queue(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, playlist)
}

type AppendSongRequest struct {
	RoomPassword string `json:"roomPassword" binding:"required"`
	SongName     string `json:"songName" binding:"required"`
	ArtistName   string `json:"artistName"`
	AlbumName    string `json:"albumName"`
	AddedBy      string `json:"addedBy" binding:"required"`
}

func (h *Handler) appendSong(c *gin.Context) {
	var req AppendSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	song, err := h.service.AppendSong(c.Request.Context(), c.Param("roomId"), req.RoomPassword, protocol.AddSong{
		SongName:   req.SongName,
		ArtistName: req.ArtistName,
		AlbumName:  req.AlbumName,
		AddedBy:    req.AddedBy,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, song)
}

type ReorderRequest struct {
	NewOrder []string `json:"newOrder" binding:"required"`
}

func (h *Handler) reorder(c *gin.Context) {
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	roomID := c.Param("roomId")
	if err := h.service.Reorder(c.Request.Context(), roomID, c.GetString("username"), req.NewOrder); err != nil {
		fail(c, err)
		return
	}
	playlist, err := h.service.Queue(c.Request.Context(), roomID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, playlist)
}

func (h *Handler) getMetrics(c *gin.Context) {
	metrics, err := h.service.Metrics(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *Handler) getHistory(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"songs": history})
}

type SendPlaylistRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (h *Handler) sendPlaylist(c *gin.Context) {
	var req SendPlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.SendPlaylist(c.Request.Context(), c.Param("roomId"), req.Email, req.Phone); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "playlist delivery scheduled"})
}
