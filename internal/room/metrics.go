package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/beatbus/room-sync/internal/tasks"
	"github.com/beatbus/room-sync/pkg/database"
	"github.com/beatbus/room-sync/pkg/models"
)

type SongSummary struct {
	SongID   string `json:"songId"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	AddedBy  string `json:"addedBy"`
	Likes    int    `json:"likes"`
	Dislikes int    `json:"dislikes"`
}

type Contributor struct {
	Username string `json:"username"`
	Songs    int    `json:"songs"`
}

// Metrics summarizes a live room across its played, playing and queued songs.
type Metrics struct {
	RoomID         string       `json:"roomId"`
	RoomSize       int          `json:"roomSize"`
	QueueLength    int          `json:"queueLength"`
	SongsPlayed    int          `json:"songsPlayed"`
	MostLiked      *SongSummary `json:"mostLiked"`
	MostDisliked   *SongSummary `json:"mostDisliked"`
	TopContributor *Contributor `json:"topContributor"`
}

func (s *Service) Metrics(ctx context.Context, roomID string) (*Metrics, error) {
	live, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	history, err := s.db.PlayedSongs(roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	songs := make([]SongSummary, 0, len(history)+len(live.State.Queue)+1)
	for _, p := range history {
		songs = append(songs, SongSummary{
			SongID: p.SongID, Title: p.Title, Artist: p.Artist,
			AddedBy: p.AddedBy, Likes: p.Likes, Dislikes: p.Dislikes,
		})
	}
	if np := live.State.NowPlaying; np != nil {
		songs = append(songs, summarize(*np))
	}
	unplayed := models.Unplayed(live.State.Queue)
	for _, item := range unplayed {
		songs = append(songs, summarize(item.Song))
	}

	m := &Metrics{
		RoomID:      roomID,
		RoomSize:    live.State.NumberOfUsers,
		QueueLength: len(unplayed),
		SongsPlayed: live.SongsPlayed,
	}
	m.MostLiked = best(songs, func(s SongSummary) int { return s.Likes })
	m.MostDisliked = best(songs, func(s SongSummary) int { return s.Dislikes })
	m.TopContributor = topContributor(songs)
	return m, nil
}

func summarize(song models.Song) SongSummary {
	return SongSummary{
		SongID:   song.SongID,
		Title:    song.Stats.Title,
		Artist:   song.Stats.Artist,
		AddedBy:  song.Metadata.AddedBy,
		Likes:    song.Metadata.Likes,
		Dislikes: song.Metadata.Dislikes,
	}
}

// best returns the first song with the highest positive score.
func best(songs []SongSummary, score func(SongSummary) int) *SongSummary {
	var top *SongSummary
	for i := range songs {
		if v := score(songs[i]); v > 0 && (top == nil || v > score(*top)) {
			top = &songs[i]
		}
	}
	return top
}

func topContributor(songs []SongSummary) *Contributor {
	counts := make(map[string]int)
	for _, s := range songs {
		if s.AddedBy != "" {
			counts[s.AddedBy]++
		}
	}
	if len(counts) == 0 {
		return nil
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	return &Contributor{Username: names[0], Songs: counts[names[0]]}
}

// History lists the songs played in a room, also after the room has closed.
func (s *Service) History(ctx context.Context, roomID string) ([]models.PlayedSong, error) {
	if _, err := s.db.GetRoomByID(roomID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return s.db.PlayedSongs(roomID)
}

// SendPlaylist queues delivery of the room's played songs to an email
// address, a phone number or both.
func (s *Service) SendPlaylist(ctx context.Context, roomID, email, phone string) error {
	email, phone = strings.TrimSpace(email), strings.TrimSpace(phone)
	if email == "" && phone == "" {
		return ErrNoRecipient
	}
	if s.opts.Scheduler == nil {
		return ErrNoScheduler
	}
	record, err := s.db.GetRoomByID(roomID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	history, err := s.db.PlayedSongs(roomID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	payload := tasks.PlaylistSendPayload{
		RoomID:   roomID,
		RoomName: record.Name,
		Email:    email,
		Phone:    phone,
		Songs:    make([]tasks.PlaylistEntry, 0, len(history)),
	}
	for _, p := range history {
		payload.Songs = append(payload.Songs, tasks.PlaylistEntry{Title: p.Title, Artist: p.Artist, AddedBy: p.AddedBy})
	}
	return s.opts.Scheduler.SchedulePlaylist(ctx, payload)
}
