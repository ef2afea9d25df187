package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatbus/room-sync/pkg/models"
)

func TestDecodeEvent_RoomStatePayloadIsTheState(t *testing.T) {
	raw := `{"type":"room_state_update","payload":{"roomID":"r1","numberOfUsers":5,
		"roomSettings":{"roomName":"Friday","hostUsername":"alice"},
		"nowPlaying":null,"queue":[{"song":{"songId":"A","stats":{"title":"One","artist":"U2"},
		"metadata":{"addedBy":"bob","likes":1,"dislikes":0}},"alreadyPlayed":false,"position":1}]}}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)

	snap, ok := ev.(RoomStateUpdate)
	require.True(t, ok, "expected RoomStateUpdate, got %T", ev)
	assert.Equal(t, "r1", snap.State.RoomID)
	assert.Equal(t, 5, snap.State.NumberOfUsers)
	assert.Equal(t, "alice", snap.State.Settings.HostUsername)
	assert.Nil(t, snap.State.NowPlaying)
	require.Len(t, snap.State.Queue, 1)
	assert.Equal(t, "bob", snap.State.Queue[0].Song.Metadata.AddedBy)
}

func TestDecodeEvent_MissingPayload(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"room_deleted"}`))
	require.NoError(t, err)
	assert.Equal(t, RoomDeleted{}, ev)

	ev, err = DecodeEvent([]byte(`{"type":"vote_update"}`))
	require.NoError(t, err)
	assert.Equal(t, VoteUpdate{}, ev)
}

func TestDecodeEvent_UnknownType(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"confetti","payload":{}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestDecodeEvent_MalformedFrame(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":`))
	require.Error(t, err)
}

func TestEncodeCommand_SettingsPayloadIsFlat(t *testing.T) {
	data, err := EncodeCommand(UpdateRoomSettings{Settings: models.RoomSettings{RoomName: "Late", MaxUsers: 4}})
	require.NoError(t, err)

	var env struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "update_room_settings", env.Type)
	assert.Equal(t, "Late", env.Payload["roomName"])
	assert.EqualValues(t, 4, env.Payload["maxUsers"])
}

func TestDecodeCommand_Vote(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"vote_song","payload":{"action":"remove-like","songId":"A"}}`))
	require.NoError(t, err)
	assert.Equal(t, VoteSong{Action: VoteRemoveLike, SongID: "A"}, cmd)
	assert.True(t, cmd.(VoteSong).Action.Valid())
	assert.False(t, VoteAction("superlike").Valid())
}

func TestErrorTerminal(t *testing.T) {
	assert.True(t, Error{Code: CodeAuthFailed}.Terminal())
	assert.True(t, Error{Code: CodeRemoved}.Terminal())
	assert.False(t, Error{Code: CodeForbidden}.Terminal())
	assert.False(t, Error{Message: "oops"}.Terminal())
	assert.Equal(t, "forbidden: host only", Error{Code: CodeForbidden, Message: "host only"}.Error())
}
