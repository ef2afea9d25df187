package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeRoomExpire   = "room:expire"
	TypePlaylistSend = "playlist:send"
)

type RoomExpirePayload struct {
	RoomID string `json:"room_id"`
}

type PlaylistEntry struct {
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	AddedBy string `json:"added_by"`
}

// PlaylistSendPayload asks for a room's played songs to be delivered by
// email, SMS or both.
type PlaylistSendPayload struct {
	RoomID   string          `json:"room_id"`
	RoomName string          `json:"room_name"`
	Email    string          `json:"email,omitempty"`
	Phone    string          `json:"phone,omitempty"`
	Songs    []PlaylistEntry `json:"songs"`
}

func NewRoomExpireTask(roomID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RoomExpirePayload{RoomID: roomID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRoomExpire, payload), nil
}

func NewPlaylistSendTask(p PlaylistSendPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePlaylistSend, payload, asynq.MaxRetry(5)), nil
}

// Client schedules background work on asynq.
type Client struct {
	client *asynq.Client
}

func NewClient(redisOpt asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpt)}
}

// ScheduleExpiry enqueues the close of roomID at at. Rescheduling leaves the
// earlier task in place; the handler ignores rooms that are not due yet.
func (c *Client) ScheduleExpiry(ctx context.Context, roomID string, at time.Time) error {
	task, err := NewRoomExpireTask(roomID)
	if err != nil {
		return fmt.Errorf("failed to build expiry task: %w", err)
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.ProcessAt(at), asynq.Queue("default")); err != nil {
		return fmt.Errorf("failed to enqueue expiry task: %w", err)
	}
	return nil
}

func (c *Client) SchedulePlaylist(ctx context.Context, p PlaylistSendPayload) error {
	task, err := NewPlaylistSendTask(p)
	if err != nil {
		return fmt.Errorf("failed to build playlist task: %w", err)
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue("low")); err != nil {
		return fmt.Errorf("failed to enqueue playlist task: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
