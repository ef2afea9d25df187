package models

import (
	"time"
)

// User is a registered account able to host rooms.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Username     string    `json:"username" gorm:"uniqueIndex;size:64"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RoomRecord is the durable record of a room. Live state lives in Redis.
type RoomRecord struct {
	ID           string     `json:"id" gorm:"primaryKey;size:36"`
	HostUsername string     `json:"host_username" gorm:"index;size:64"`
	Name         string     `json:"name"`
	MaxUsers     int        `json:"max_users"`
	IsPublic     bool       `json:"is_public"`
	Lifetime     int        `json:"lifetime"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// PlayedSong is one entry of a room's session history.
type PlayedSong struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	RoomID    string    `json:"room_id" gorm:"index;size:36"`
	SongID    string    `json:"song_id" gorm:"size:36"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Album     string    `json:"album"`
	Duration  int       `json:"duration"`
	AddedBy   string    `json:"added_by" gorm:"size:64"`
	Likes     int       `json:"likes"`
	Dislikes  int       `json:"dislikes"`
	PlayOrder int       `json:"play_order"`
	PlayedAt  time.Time `json:"played_at"`
}

// PlayedSongFrom builds a history entry from a song leaving the now-playing slot.
func PlayedSongFrom(roomID string, song Song, order int, at time.Time) *PlayedSong {
	return &PlayedSong{
		RoomID:    roomID,
		SongID:    song.SongID,
		Title:     song.Stats.Title,
		Artist:    song.Stats.Artist,
		Album:     song.Stats.Album,
		Duration:  song.Stats.Duration,
		AddedBy:   song.Metadata.AddedBy,
		Likes:     song.Metadata.Likes,
		Dislikes:  song.Metadata.Dislikes,
		PlayOrder: order,
		PlayedAt:  at,
	}
}
