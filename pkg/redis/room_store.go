package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beatbus/room-sync/pkg/models"
)

const (
	roomKeyPrefix = "room:"
	maxTxRetries  = 16
	// live state outlives the room's lifetime by this much so late readers
	// still find it while the expiry task runs
	roomGracePeriod = time.Hour
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
	ErrConflict     = errors.New("room state changed concurrently")
)

// LiveRoom is the server-side record of an open room.
type LiveRoom struct {
	State        models.RoomState `json:"state"`
	PasswordHash string           `json:"passwordHash"`
	CreatedAt    time.Time        `json:"createdAt"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	SongsPlayed  int              `json:"songsPlayed"`
}

// RoomStore keeps live rooms as JSON values. Every change goes through
// Update, which retries an optimistic WATCH transaction.
type RoomStore struct {
	client *redis.Client
}

func NewRoomStore(client *redis.Client) *RoomStore {
	return &RoomStore{client: client}
}

func roomKey(roomID string) string {
	return roomKeyPrefix + roomID
}

func (r *LiveRoom) ttl() time.Duration {
	if r.ExpiresAt.IsZero() {
		return 0
	}
	ttl := time.Until(r.ExpiresAt) + roomGracePeriod
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *RoomStore) Create(ctx context.Context, room *LiveRoom) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}
	ok, err := s.client.SetNX(ctx, roomKey(room.State.RoomID), data, room.ttl()).Result()
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	if !ok {
		return ErrRoomExists
	}
	return nil
}

func (s *RoomStore) Get(ctx context.Context, roomID string) (*LiveRoom, error) {
	data, err := s.client.Get(ctx, roomKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	var room LiveRoom
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}

// Update applies fn to the current room and stores the result atomically.
// An error from fn aborts the update and is returned unchanged.
func (s *RoomStore) Update(ctx context.Context, roomID string, fn func(*LiveRoom) error) (*LiveRoom, error) {
	key := roomKey(roomID)
	var updated *LiveRoom

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrRoomNotFound
			}
			return fmt.Errorf("failed to get room: %w", err)
		}
		var room LiveRoom
		if err := json.Unmarshal(data, &room); err != nil {
			return fmt.Errorf("failed to unmarshal room: %w", err)
		}
		if err := fn(&room); err != nil {
			return err
		}
		encoded, err := json.Marshal(&room)
		if err != nil {
			return fmt.Errorf("failed to marshal room: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, room.ttl())
			return nil
		})
		if err != nil {
			return err
		}
		updated = &room
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}

func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, roomKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}
