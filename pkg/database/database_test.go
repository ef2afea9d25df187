package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatbus/room-sync/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestUsers(t *testing.T) {
	db := newTestDB(t)

	u := &models.User{Username: "kay", PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(u))
	assert.NotEmpty(t, u.ID)

	assert.ErrorIs(t, db.CreateUser(&models.User{Username: "kay"}), ErrUsernameTaken)

	got, err := db.GetUserByUsername("kay")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = db.GetUserByUsername("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoomRecords(t *testing.T) {
	db := newTestDB(t)

	room := &models.RoomRecord{ID: "r1", HostUsername: "kay", Name: "Friday", MaxUsers: 10, Active: true}
	require.NoError(t, db.CreateRoom(room))

	room.Name = "Saturday"
	require.NoError(t, db.UpdateRoom(room))

	closedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.CloseRoom("r1", closedAt))
	require.NoError(t, db.CloseRoom("r1", closedAt.Add(time.Hour)))

	got, err := db.GetRoomByID("r1")
	require.NoError(t, err)
	assert.Equal(t, "Saturday", got.Name)
	assert.False(t, got.Active)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, closedAt.Equal(got.ClosedAt.UTC()))

	_, err = db.GetRoomByID("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlayedSongsInOrder(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	for i, id := range []string{"b", "a", "c"} {
		song := models.Song{SongID: id, Stats: models.SongStats{Title: id}, Metadata: models.SongMetadata{AddedBy: "kay"}}
		order := []int{2, 1, 3}[i]
		require.NoError(t, db.RecordPlayedSong(models.PlayedSongFrom("r1", song, order, now)))
	}
	require.NoError(t, db.RecordPlayedSong(models.PlayedSongFrom("other", models.Song{SongID: "z"}, 1, now)))

	songs, err := db.PlayedSongs("r1")
	require.NoError(t, err)
	require.Len(t, songs, 3)
	assert.Equal(t, "a", songs[0].SongID)
	assert.Equal(t, "b", songs[1].SongID)
	assert.Equal(t, "c", songs[2].SongID)
}
