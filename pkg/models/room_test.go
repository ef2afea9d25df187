package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSongNormalize_FillsMissingFields(t *testing.T) {
	s := Song{Metadata: SongMetadata{Likes: -3}}
	s.Normalize()

	assert.Equal(t, Unknown, s.SongID)
	assert.Equal(t, Unknown, s.Stats.Title)
	assert.Equal(t, Unknown, s.Stats.Artist)
	assert.Equal(t, Unknown, s.Metadata.AddedBy)
	assert.Equal(t, "", s.Stats.Album, "album is optional")
	assert.Zero(t, s.Metadata.Likes)
	assert.Zero(t, s.Metadata.Dislikes)
}

func TestRoomStateNormalize_NilQueueBecomesEmpty(t *testing.T) {
	r := RoomState{NumberOfUsers: -1}
	r.Normalize()

	assert.NotNil(t, r.Queue)
	assert.Empty(t, r.Queue)
	assert.Zero(t, r.NumberOfUsers)
	assert.Equal(t, Unknown, r.Settings.HostUsername)
}

func TestClone_IsDeep(t *testing.T) {
	orig := &RoomState{
		NowPlaying: &Song{SongID: "A"},
		Queue:      []QueueItem{{Song: Song{SongID: "B"}, Position: 1}},
	}
	cp := orig.Clone()
	cp.NowPlaying.SongID = "X"
	cp.Queue[0].Position = 9

	assert.Equal(t, "A", orig.NowPlaying.SongID)
	assert.Equal(t, 1, orig.Queue[0].Position)
}

func TestRenumber_SkipsPlayedItems(t *testing.T) {
	q := []QueueItem{
		{Song: Song{SongID: "old"}, AlreadyPlayed: true, Position: 1},
		{Song: Song{SongID: "b"}, Position: 7},
		{Song: Song{SongID: "c"}, Position: 3},
	}
	Renumber(q)

	assert.Equal(t, 1, q[0].Position)
	assert.Equal(t, 1, q[1].Position)
	assert.Equal(t, 2, q[2].Position)

	require.Len(t, Unplayed(q), 2)
	assert.Equal(t, 2, FindQueueItem(q, "c"))
	assert.Equal(t, -1, FindQueueItem(q, "zzz"))
}

func TestReorder(t *testing.T) {
	q := []QueueItem{
		{Song: Song{SongID: "p"}, AlreadyPlayed: true, Position: 1},
		{Song: Song{SongID: "a"}, Position: 1},
		{Song: Song{SongID: "b"}, Position: 2},
		{Song: Song{SongID: "c"}, Position: 3},
	}

	out := Reorder(q, []string{"c", "ghost", "p", "a"})

	ids := make([]string, len(out))
	for i, item := range out {
		ids[i] = item.Song.SongID
	}
	assert.Equal(t, []string{"p", "c", "a", "b"}, ids)
	assert.Equal(t, 1, out[1].Position)
	assert.Equal(t, 2, out[2].Position)
	assert.Equal(t, 3, out[3].Position)
	assert.Equal(t, "a", q[1].Song.SongID, "input is not modified")
}
