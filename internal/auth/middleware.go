package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/beatbus/room-sync/pkg/jwt"
	"github.com/beatbus/room-sync/pkg/redis"
)

const cookieName = "auth_token"

// bearerToken reads the token from the Authorization header, the auth
// cookie or the token query parameter, in that order.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("token")
}

// RequireUser admits requests carrying a valid user token.
func RequireUser(signer *jwt.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			return
		}
		claims, err := signer.ValidateToken(token)
		if err != nil || claims.Role != jwt.RoleUser {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

// RequireHost admits requests carrying the current host token of the room
// named by the roomId path parameter.
func RequireHost(signer *jwt.Signer, tokenStore *redis.TokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			return
		}
		claims, err := signer.ValidateToken(token)
		if err != nil || claims.Role != jwt.RoleHost {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		roomID := c.Param("roomId")
		if claims.RoomID != roomID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Token is not valid for this room"})
			return
		}

		// a token is revoked when its room closes
		info, err := tokenStore.GetHostToken(c.Request.Context(), roomID)
		if err != nil || info.Token != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token revoked"})
			return
		}

		c.Set("username", claims.Username)
		c.Set("room_id", roomID)
		c.Next()
	}
}
