package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatbus/room-sync/pkg/models"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/api/v1/")
}

func TestCreateRoom_SendsUserToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/rooms", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		var req CreateRoomRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Friday", req.RoomName)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"roomId": "ABCD1234", "roomPassword": "PW", "hostToken": "host-token",
			"room": map[string]any{"roomID": "ABCD1234", "roomSettings": map[string]any{"roomName": "Friday", "hostUsername": "alice"}},
		})
	})

	c := newTestClient(t, mux).WithToken("user-token")
	created, err := c.CreateRoom(context.Background(), CreateRoomRequest{RoomName: "Friday"})
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", created.RoomID)
	assert.Equal(t, "host-token", created.HostToken)
	assert.Equal(t, "alice", created.Room.Settings.HostUsername)
}

func TestJoinCheck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/rooms/R1", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("username") {
		case "member":
			w.WriteHeader(http.StatusNoContent)
		case "newcomer":
			if r.URL.Query().Get("roomPassword") != "PW" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid room password"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"roomID": "R1", "numberOfUsers": 2})
		}
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	state, err := c.JoinCheck(ctx, "R1", "PW", "newcomer")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 2, state.NumberOfUsers)
	assert.NotNil(t, state.Queue)

	state, err = c.JoinCheck(ctx, "R1", "PW", "member")
	require.NoError(t, err)
	assert.Nil(t, state)

	_, err = c.JoinCheck(ctx, "R1", "wrong", "newcomer")
	assert.ErrorIs(t, err, ErrUnauthorized)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid room password", apiErr.Message)
}

func TestHostEndpoints_UseHostToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/queues/R1/playlist", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer host-token" {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "host token required"})
			return
		}
		var body struct {
			NewOrder []string `json:"newOrder"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		queue := make([]models.QueueItem, 0, len(body.NewOrder))
		for i, id := range body.NewOrder {
			queue = append(queue, models.QueueItem{Song: models.Song{SongID: id}, Position: i + 1})
		}
		_ = json.NewEncoder(w).Encode(Playlist{Queue: queue})
	})
	mux.HandleFunc("/api/v1/rooms/R1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	playlist, err := c.Reorder(ctx, "R1", "host-token", []string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, playlist.Queue, 2)
	assert.Equal(t, "b", playlist.Queue[0].Song.SongID)

	_, err = c.Reorder(ctx, "R1", "guest-token", []string{"a"})
	assert.ErrorIs(t, err, ErrForbidden)

	assert.NoError(t, c.DeleteRoom(ctx, "R1", "host-token"))
}

func TestMetricsAndHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/metrics/R1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Metrics{
			RoomID: "R1", RoomSize: 3, SongsPlayed: 1,
			MostLiked:      &SongSummary{SongID: "s1", Likes: 2},
			TopContributor: &Contributor{Username: "alice", Songs: 2},
		})
	})
	mux.HandleFunc("/api/v1/metrics/R1/history", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"songs": []models.PlayedSong{{SongID: "s1", Title: "One"}}})
	})
	mux.HandleFunc("/api/v1/metrics/GONE", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	m, err := c.Metrics(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, 3, m.RoomSize)
	assert.Equal(t, "alice", m.TopContributor.Username)
	assert.Nil(t, m.MostDisliked)

	history, err := c.History(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "One", history[0].Title)

	_, err = c.Metrics(ctx, "GONE")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "Not Found")
}

func TestSignUp_Conflict(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/signUp", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "username already taken"})
	})
	_, err := newTestClient(t, mux).SignUp(context.Background(), "alice", "secret1")
	assert.ErrorIs(t, err, ErrConflict)
}
