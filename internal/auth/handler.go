package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/beatbus/room-sync/pkg/database"
	"github.com/beatbus/room-sync/pkg/jwt"
	"github.com/beatbus/room-sync/pkg/models"
)

const (
	minPasswordLength = 6
	maxUsernameLength = 64
)

type Handler struct {
	db          *database.DB
	signer      *jwt.Signer
	tokenExpiry time.Duration
	secure      bool
	bcryptCost  int
	log         *logrus.Entry
}

func NewHandler(db *database.DB, signer *jwt.Signer, tokenExpiry time.Duration, secure bool) *Handler {
	return &Handler{
		db:          db,
		signer:      signer,
		tokenExpiry: tokenExpiry,
		secure:      secure,
		bcryptCost:  bcrypt.DefaultCost,
		log:         logrus.WithField("component", "auth"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/signUp", h.signUp)
	r.POST("/login", h.login)
	r.GET("/auth/status", RequireUser(h.signer), h.status)
}

type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) signUp(c *gin.Context) {
	var req Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || len(username) > maxUsernameLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if len(req.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is too short"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}
	user := &models.User{Username: username, PasswordHash: string(hash)}
	if err := h.db.CreateUser(user); err != nil {
		if errors.Is(err, database.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.log.WithError(err).Error("Failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	h.log.WithField("user", username).Info("User signed up")
	h.issue(c, http.StatusCreated, user)
}

func (h *Handler) login(c *gin.Context) {
	var req Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.db.GetUserByUsername(strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	h.issue(c, http.StatusOK, user)
}

func (h *Handler) issue(c *gin.Context, status int, user *models.User) {
	token, err := h.signer.GenerateToken(user.ID, user.Username, h.tokenExpiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenExpiry.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	c.JSON(status, TokenResponse{
		Token:     token,
		Username:  user.Username,
		ExpiresAt: time.Now().Add(h.tokenExpiry).UTC(),
	})
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "username": c.GetString("username")})
}
