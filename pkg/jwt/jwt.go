package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleUser = "user"
	RoleHost = "host"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("jwt secret cannot be empty")
)

// Claims identify a user, or for host tokens, the host of one room.
type Claims struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username"`
	RoomID   string `json:"room_id,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
	issuer string
}

func NewSigner(secret, issuer string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret), issuer: issuer}, nil
}

// GenerateToken issues a user session token.
func (s *Signer) GenerateToken(userID, username string, ttl time.Duration) (string, error) {
	return s.sign(Claims{UserID: userID, Username: username, Role: RoleUser}, ttl)
}

// GenerateHostToken issues the token that authorizes host-only calls for
// roomID. Revocation is tracked separately, so ttl only bounds its use.
func (s *Signer) GenerateHostToken(roomID, username string, ttl time.Duration) (string, error) {
	return s.sign(Claims{Username: username, RoomID: roomID, Role: RoleHost}, ttl)
}

func (s *Signer) sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   claims.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses tokenStr and checks its signature and expiry.
func (s *Signer) ValidateToken(tokenStr string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
