package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/beatbus/room-sync/internal/tasks"
)

// RoomExpirer closes rooms whose lifetime has passed.
type RoomExpirer interface {
	ExpireRoom(ctx context.Context, roomID string) error
}

type ExpiryHandler struct {
	rooms RoomExpirer
}

func NewExpiryHandler(rooms RoomExpirer) *ExpiryHandler {
	return &ExpiryHandler{rooms: rooms}
}

func (h *ExpiryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.RoomExpirePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RoomID == "" {
		return fmt.Errorf("room id missing: %w", asynq.SkipRetry)
	}

	logrus.WithFields(logrus.Fields{"task_type": t.Type(), "room": payload.RoomID}).Debug("Processing room expiry")
	if err := h.rooms.ExpireRoom(ctx, payload.RoomID); err != nil {
		return fmt.Errorf("failed to expire room %s: %w", payload.RoomID, err)
	}
	return nil
}
