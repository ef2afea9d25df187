package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatbus/room-sync/pkg/api"
	"github.com/beatbus/room-sync/pkg/models"
)

func TestWebsocketURL(t *testing.T) {
	u, err := websocketURL("http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/api/v1/ws", u)

	u, err = websocketURL("https://beatbus.example/")
	require.NoError(t, err)
	assert.Equal(t, "wss://beatbus.example/api/v1/ws", u)
}

func TestPrintPlaylist_SkipsPlayedSongs(t *testing.T) {
	song := func(id, title string) models.Song {
		return models.Song{SongID: id, Stats: models.SongStats{Title: title, Artist: "A"}, Metadata: models.SongMetadata{AddedBy: "bob"}}
	}
	var buf bytes.Buffer
	now := song("n", "Now")
	printPlaylist(&buf, &now, []models.QueueItem{
		{Song: song("p", "Old"), AlreadyPlayed: true},
		{Song: song("q", "Next"), Position: 1},
	})
	assert.Equal(t, "Now playing: Now - A (+0/-0)\n 1. Next - A (added by bob)\n", buf.String())
}

func TestPrintMetrics_OmitsEmptyLeaders(t *testing.T) {
	var buf bytes.Buffer
	printMetrics(&buf, &api.Metrics{RoomID: "R1", RoomSize: 2})
	assert.Equal(t, "Room R1: 2 listening, 0 queued, 0 played\n", buf.String())
}
