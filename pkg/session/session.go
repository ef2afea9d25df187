// Package session holds what a client remembers between runs: who is logged
// in, their tokens, and the room they were last in. It is loaded once at
// start and saved once at exit.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

type Session struct {
	Username    string `json:"username,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`

	RoomID       string `json:"roomId,omitempty"`
	RoomPassword string `json:"roomPassword,omitempty"`

	// HostTokens maps a room id to the token returned when that room was created.
	HostTokens map[string]HostToken `json:"hostTokens,omitempty"`
}

type HostToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Session) IsAuthenticated() bool {
	return s.Username != "" && s.AccessToken != ""
}

// HostToken returns the unexpired host token for roomID.
func (s *Session) HostToken(roomID string, now time.Time) (string, bool) {
	t, ok := s.HostTokens[roomID]
	if !ok || (!t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)) {
		return "", false
	}
	return t.Token, true
}

func (s *Session) SetHostToken(roomID, token string, expiresAt time.Time) {
	if s.HostTokens == nil {
		s.HostTokens = make(map[string]HostToken)
	}
	s.HostTokens[roomID] = HostToken{Token: token, ExpiresAt: expiresAt}
}

// EnterRoom records the room the user is in.
func (s *Session) EnterRoom(roomID, password string) {
	s.RoomID = roomID
	s.RoomPassword = password
}

func (s *Session) LeaveRoom() {
	s.RoomID = ""
	s.RoomPassword = ""
}

// Logout forgets everything.
func (s *Session) Logout() {
	*s = Session{}
}

// Prune drops expired host tokens.
func (s *Session) Prune(now time.Time) {
	for id, t := range s.HostTokens {
		if !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt) {
			delete(s.HostTokens, id)
		}
	}
}

// Load reads a session from path. A missing file yields an empty session.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &s, nil
}

// Save writes the session to path, readable only by the owner.
func (s *Session) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}
	return nil
}

// DefaultPath is the session file under the user's config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "beatbus", "session.json")
}
