package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatbus/room-sync/internal/tasks"
)

type fakeExpirer struct {
	rooms []string
	err   error
}

func (f *fakeExpirer) ExpireRoom(ctx context.Context, roomID string) error {
	f.rooms = append(f.rooms, roomID)
	return f.err
}

func TestExpiryHandler_ExpiresRoom(t *testing.T) {
	rooms := &fakeExpirer{}
	task, err := tasks.NewRoomExpireTask("ROOM1")
	require.NoError(t, err)

	require.NoError(t, NewExpiryHandler(rooms).ProcessTask(context.Background(), task))
	assert.Equal(t, []string{"ROOM1"}, rooms.rooms)
}

func TestExpiryHandler_MalformedPayloadSkipsRetry(t *testing.T) {
	rooms := &fakeExpirer{}
	err := NewExpiryHandler(rooms).ProcessTask(context.Background(), asynq.NewTask(tasks.TypeRoomExpire, []byte("{")))

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, rooms.rooms)
}

func TestExpiryHandler_PropagatesFailure(t *testing.T) {
	rooms := &fakeExpirer{err: errors.New("redis down")}
	task, _ := tasks.NewRoomExpireTask("ROOM1")

	err := NewExpiryHandler(rooms).ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func playlistPayload(phone, email string) tasks.PlaylistSendPayload {
	return tasks.PlaylistSendPayload{
		RoomID:   "ROOM1",
		RoomName: "Friday",
		Phone:    phone,
		Email:    email,
		Songs: []tasks.PlaylistEntry{
			{Title: "Song A", Artist: "Artist A"},
			{Title: "Song B", Artist: "Artist B"},
		},
	}
}

func TestFormatPlaylist(t *testing.T) {
	out := FormatPlaylist(playlistPayload("", "a@b.c"))
	assert.Equal(t, "Songs played in Friday:\n1. Song A - Artist A\n2. Song B - Artist B\n", out)
}

func TestPlaylistHandler_SendsSMS(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"phone":   r.PostForm.Get("phone"),
			"message": r.PostForm.Get("message"),
			"key":     r.PostForm.Get("key"),
		}
		_ = json.NewEncoder(w).Encode(gatewayResponse{Success: true})
	}))
	defer srv.Close()

	task, err := tasks.NewPlaylistSendTask(playlistPayload("+15550100", ""))
	require.NoError(t, err)

	h := NewPlaylistHandler(srv.URL, "secret")
	require.NoError(t, h.ProcessTask(context.Background(), task))

	assert.Equal(t, "+15550100", form["phone"])
	assert.Equal(t, "secret", form["key"])
	assert.Contains(t, form["message"], "1. Song A - Artist A")
}

func TestPlaylistHandler_GatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(gatewayResponse{Success: false, Error: "Out of quota"})
	}))
	defer srv.Close()

	task, _ := tasks.NewPlaylistSendTask(playlistPayload("+15550100", ""))
	err := NewPlaylistHandler(srv.URL, "secret").ProcessTask(context.Background(), task)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Out of quota")
}

func TestPlaylistHandler_EmailOnlyIsLogged(t *testing.T) {
	task, _ := tasks.NewPlaylistSendTask(playlistPayload("", "dj@example.com"))
	assert.NoError(t, NewPlaylistHandler("http://127.0.0.1:1", "").ProcessTask(context.Background(), task))
}

func TestPlaylistHandler_NoRecipient(t *testing.T) {
	task, _ := tasks.NewPlaylistSendTask(playlistPayload("", ""))
	err := NewPlaylistHandler("", "").ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
