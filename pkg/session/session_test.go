package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.False(t, s.IsAuthenticated())
}

func TestSaveLoad_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "session.json")
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	s := &Session{Username: "kay", AccessToken: "tok"}
	s.EnterRoom("room-1", "pw")
	s.SetHostToken("room-1", "host-tok", exp)
	require.NoError(t, s.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.IsAuthenticated())
	assert.Equal(t, "room-1", loaded.RoomID)
	tok, ok := loaded.HostToken("room-1", exp.Add(-time.Hour))
	assert.True(t, ok)
	assert.Equal(t, "host-tok", tok)

	_, ok = loaded.HostToken("room-1", exp.Add(time.Hour))
	assert.False(t, ok, "expired host token is not returned")
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLogoutAndPrune(t *testing.T) {
	now := time.Now()
	s := &Session{Username: "kay", AccessToken: "tok"}
	s.SetHostToken("old", "a", now.Add(-time.Minute))
	s.SetHostToken("new", "b", now.Add(time.Minute))

	s.Prune(now)
	assert.Len(t, s.HostTokens, 1)

	s.Logout()
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.HostTokens)
}
