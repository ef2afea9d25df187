package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenNotFound = errors.New("host token not found")

// TokenInfo is the host token issued for a room.
type TokenInfo struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func hostTokenKey(roomID string) string {
	return fmt.Sprintf("host_token:%s", roomID)
}

// StoreHostToken saves the room's host token until it expires.
func (s *TokenStore) StoreHostToken(ctx context.Context, roomID string, token *TokenInfo) error {
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	ttl := time.Until(token.ExpiresAt)
	if token.ExpiresAt.IsZero() {
		ttl = 0
	} else if ttl <= 0 {
		return fmt.Errorf("failed to store token: already expired")
	}
	if err := s.client.Set(ctx, hostTokenKey(roomID), tokenJSON, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *TokenStore) GetHostToken(ctx context.Context, roomID string) (*TokenInfo, error) {
	tokenJSON, err := s.client.Get(ctx, hostTokenKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token TokenInfo
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// DeleteHostToken revokes the room's host token.
func (s *TokenStore) DeleteHostToken(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, hostTokenKey(roomID)).Err()
}

// RefreshHostToken replaces the token and its expiry, e.g. after the room's
// lifetime changed.
func (s *TokenStore) RefreshHostToken(ctx context.Context, roomID, newToken string, newExpiresAt time.Time) error {
	token, err := s.GetHostToken(ctx, roomID)
	if err != nil {
		return err
	}

	token.Token = newToken
	token.ExpiresAt = newExpiresAt
	return s.StoreHostToken(ctx, roomID, token)
}
