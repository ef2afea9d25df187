package room

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/beatbus/room-sync/internal/tasks"
	"github.com/beatbus/room-sync/pkg/database"
	"github.com/beatbus/room-sync/pkg/events"
	"github.com/beatbus/room-sync/pkg/jwt"
	"github.com/beatbus/room-sync/pkg/models"
	"github.com/beatbus/room-sync/pkg/protocol"
	store "github.com/beatbus/room-sync/pkg/redis"
	"github.com/beatbus/room-sync/pkg/roomsync"
)

const (
	roomIDLength   = 8
	passwordLength = 8
	maxChatLength  = 500
	catalogTimeout = 3 * time.Second
)

var (
	ErrRoomNotFound    = store.ErrRoomNotFound
	ErrInvalidPassword = errors.New("invalid room password")
	ErrRoomFull        = errors.New("room is full")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrNotParticipant  = errors.New("user is not in the room")
	ErrSongNotPlaying  = errors.New("votes are only accepted for the playing song")
	ErrNothingToSkip   = errors.New("nothing to skip")
	ErrNoRecipient     = errors.New("an email or phone number is required")
	ErrNoScheduler     = errors.New("background tasks are not configured")

	// errStale aborts an update whose precondition no longer holds.
	errStale = errors.New("room changed")
)

// Catalog looks up song details from an external music catalog.
type Catalog interface {
	Lookup(ctx context.Context, title, artist, album string) (*models.SongStats, error)
}

// Scheduler enqueues background work for a room.
type Scheduler interface {
	ScheduleExpiry(ctx context.Context, roomID string, at time.Time) error
	SchedulePlaylist(ctx context.Context, p tasks.PlaylistSendPayload) error
}

type Options struct {
	DefaultLifetime int // minutes
	MaxLifetime     int
	DefaultMaxUsers int
	AutoSkipRatio   float64
	BcryptCost      int

	Catalog   Catalog
	Scheduler Scheduler
}

// Service is the authority over live rooms. Every change is applied to the
// room in Redis and then published on the event bus as a wire frame.
type Service struct {
	db     *database.DB
	rooms  *store.RoomStore
	votes  *store.VoteStore
	tokens *store.TokenStore
	bus    events.Bus
	signer *jwt.Signer
	opts   Options
	log    *logrus.Entry
	now    func() time.Time

	// per-room locks keep a room's published events in commit order
	locks sync.Map
}

func NewService(db *database.DB, rdb *goredis.Client, bus events.Bus, signer *jwt.Signer, opts Options) *Service {
	if opts.DefaultLifetime <= 0 {
		opts.DefaultLifetime = 120
	}
	if opts.MaxLifetime < opts.DefaultLifetime {
		opts.MaxLifetime = max(opts.DefaultLifetime, 24*60)
	}
	if opts.DefaultMaxUsers <= 0 {
		opts.DefaultMaxUsers = 50
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		db:     db,
		rooms:  store.NewRoomStore(rdb),
		votes:  store.NewVoteStore(rdb),
		tokens: store.NewTokenStore(rdb),
		bus:    bus,
		signer: signer,
		opts:   opts,
		log:    logrus.WithField("component", "room"),
		now:    time.Now,
	}
}

type CreateRoomRequest struct {
	RoomName string `json:"roomName" binding:"required"`
	MaxUsers int    `json:"maxUsers"`
	IsPublic bool   `json:"isPublic"`
	Lifetime int    `json:"lifetime"`
}

type CreatedRoom struct {
	RoomID       string           `json:"roomId"`
	RoomPassword string           `json:"roomPassword"`
	HostToken    string           `json:"hostToken"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	Room         models.RoomState `json:"room"`
}

// CreateRoom opens a room hosted by host and issues its password and host token.
func (s *Service) CreateRoom(ctx context.Context, host string, req CreateRoomRequest) (*CreatedRoom, error) {
	name := strings.TrimSpace(req.RoomName)
	if host == "" || name == "" {
		return nil, ErrInvalidRequest
	}
	maxUsers := req.MaxUsers
	if maxUsers <= 0 {
		maxUsers = s.opts.DefaultMaxUsers
	}
	lifetime := s.clampLifetime(req.Lifetime)

	password := randomCode(passwordLength)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash room password: %w", err)
	}

	now := s.now()
	live := &store.LiveRoom{
		State: models.RoomState{
			Settings: models.RoomSettings{
				RoomName:     name,
				HostUsername: host,
				MaxUsers:     maxUsers,
				IsPublic:     req.IsPublic,
				Lifetime:     lifetime,
			},
			Queue: []models.QueueItem{},
		},
		PasswordHash: string(hash),
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(lifetime) * time.Minute),
	}
	for attempt := 0; ; attempt++ {
		live.State.RoomID = randomCode(roomIDLength)
		err = s.rooms.Create(ctx, live)
		if !errors.Is(err, store.ErrRoomExists) || attempt == 4 {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	roomID := live.State.RoomID

	record := &models.RoomRecord{
		ID:           roomID,
		HostUsername: host,
		Name:         name,
		MaxUsers:     maxUsers,
		IsPublic:     req.IsPublic,
		Lifetime:     lifetime,
		Active:       true,
	}
	if err := s.db.CreateRoom(record); err != nil {
		_ = s.rooms.Delete(ctx, roomID)
		return nil, fmt.Errorf("failed to save room: %w", err)
	}

	// the token outlives any lifetime the room can be given; the stored copy
	// follows the actual expiry
	token, err := s.signer.GenerateHostToken(roomID, host, time.Duration(s.opts.MaxLifetime)*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host token: %w", err)
	}
	if err := s.tokens.StoreHostToken(ctx, roomID, &store.TokenInfo{
		Token:     token,
		Username:  host,
		ExpiresAt: live.ExpiresAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to store host token: %w", err)
	}
	s.scheduleExpiry(ctx, roomID, live.ExpiresAt)

	s.log.WithFields(logrus.Fields{"room": roomID, "host": host, "lifetime": lifetime}).Info("Room created")
	return &CreatedRoom{
		RoomID:       roomID,
		RoomPassword: password,
		HostToken:    token,
		ExpiresAt:    live.ExpiresAt,
		Room:         live.State,
	}, nil
}

// JoinCheck validates a join without joining. It reports whether username
// is already a participant.
func (s *Service) JoinCheck(ctx context.Context, roomID, password, username string) (*models.RoomState, bool, error) {
	live, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	if err := checkPassword(live, password); err != nil {
		return nil, false, err
	}
	if participantIndex(live.State.Participants, username) >= 0 {
		return &live.State, true, nil
	}
	if full(live) {
		return nil, false, ErrRoomFull
	}
	return &live.State, false, nil
}

// Join adds username to the room. The joiner receives a snapshot and the
// other members a user_joined; a participant joining again only gets the snapshot.
func (s *Service) Join(ctx context.Context, roomID, password, username string) error {
	if username == "" {
		return ErrInvalidRequest
	}
	live, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if err := checkPassword(live, password); err != nil {
		return err
	}

	unlock := s.lock(roomID)
	defer unlock()

	var joined bool
	live, err = s.rooms.Update(ctx, roomID, func(r *store.LiveRoom) error {
		joined = false
		if participantIndex(r.State.Participants, username) >= 0 {
			return nil
		}
		if full(r) {
			return ErrRoomFull
		}
		r.State.Participants = append(r.State.Participants, models.Participant{
			ID:       uuid.NewString(),
			Username: username,
			IsHost:   username == r.State.Settings.HostUsername,
		})
		r.State.NumberOfUsers = len(r.State.Participants)
		joined = true
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, roomID, protocol.RoomStateUpdate{State: live.State}, target{user: username})
	if joined {
		s.publish(ctx, roomID, protocol.UserJoined{Username: username}, target{except: username})
		s.log.WithFields(logrus.Fields{"room": roomID, "user": username}).Info("User joined")
	}
	return nil
}

// Leave removes username from the participants. Leaving a room that is gone
// or that the user is not in is not an error.
func (s *Service) Leave(ctx context.Context, roomID, username string) error {
	unlock := s.lock(roomID)
	defer unlock()

	_, err := s.rooms.Update(ctx, roomID, func(r *store.LiveRoom) error {
		i := participantIndex(r.State.Participants, username)
		if i < 0 {
			return errStale
		}
		r.State.Participants = slices.Delete(r.State.Participants, i, i+1)
		r.State.NumberOfUsers = len(r.State.Participants)
		return nil
	})
	if errors.Is(err, errStale) || errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.publish(ctx, roomID, protocol.UserLeft{Username: username}, target{})
	s.log.WithFields(logrus.Fields{"room": roomID, "user": username}).Info("User left")
	return nil
}

func (s *Service) Snapshot(ctx context.Context, roomID string) (*models.RoomState, error) {
	live, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &live.State, nil
}

type Playlist struct {
	NowPlaying *models.Song        `json:"nowPlaying"`
	Queue      []models.QueueItem `json:"queue"`
}

func (s *Service) Queue(ctx context.Context, roomID string) (*Playlist, error) {
	live, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &Playlist{NowPlaying: live.State.NowPlaying, Queue: live.State.Queue}, nil
}

// AddSong appends a song for username. When nothing is playing the first
// unplayed song starts.
func (s *Service) AddSong(ctx context.Context, roomID, username string, cmd protocol.AddSong) (*models.Song, error) {
	title := strings.TrimSpace(cmd.SongName)
	artist := strings.TrimSpace(cmd.ArtistName)
	if title == "" || username == "" {
		return nil, ErrInvalidRequest
	}
	song := models.Song{
		SongID:   uuid.NewString(),
		Stats:    s.lookup(ctx, title, artist, strings.TrimSpace(cmd.AlbumName)),
		Metadata: models.SongMetadata{AddedBy: username},
	}

	unlock := s.lock(roomID)
	defer unlock()

	var promoted bool
	live, err := s.rooms.Update(ctx, roomID, func(r *store.LiveRoom) error {
		r.State.Queue = append(r.State.Queue, models.QueueItem{Song: song})
		models.Renumber(r.State.Queue)
		promoted = promote(r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if promoted {
		s.publish(ctx, roomID, protocol.SongChanged{Song: live.State.NowPlaying}, target{})
	}
	s.publish(ctx, roomID, protocol.QueueUpdated{Queue: live.State.Queue}, target{})
	return &song, nil
}

// AppendSong adds a song on behalf of cmd.AddedBy after checking the room password.
func (s *Service) AppendSong(ctx context.Context, roomID, password string, cmd protocol.AddSong) (*models.Song, error) {
	live, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(live, password); err != nil {
		return nil, err
	}
	return s.AddSong(ctx, roomID, strings.TrimSpace(cmd.AddedBy), cmd)
}

func (s *Service) lookup(ctx context.Context, title, artist, album string) models.SongStats {
	stats := models.SongStats{Title: title, Artist: artist, Album: album}
	if s.opts.Catalog == nil {
		return stats
	}
	ctx, cancel := context.WithTimeout(ctx, catalogTimeout)
	defer cancel()

	found, err := s.opts.Catalog.Lookup(ctx, title, artist, album)
	if err != nil {
		s.log.WithError(err).WithField("title", title).Debug("Catalog lookup failed")
		return stats
	}
	if stats.Artist == "" {
		stats.Artist = found.Artist
	}
	if stats.Album == "" {
		stats.Album = found.Album
	}
	stats.Duration = found.Duration
	return stats
}

// Vote records username's vote on the playing song and skips it when enough
// participants dislike it.
func (s *Service) Vote(ctx context.Context, roomID, username string, cmd protocol.VoteSong) error {
	if !cmd.Action.Valid() || cmd.SongID == "" {
		return ErrInvalidRequest
	}
	skip, err := s.castVote(ctx, roomID, username, cmd)
	if err != nil || !skip {
		return err
	}
	s.log.WithFields(logrus.Fields{"room": roomID, "song": cmd.SongID}).Info("Song skipped by dislikes")
	return s.advance(ctx, roomID, func(r *store.LiveRoom) error {
		if r.State.NowPlaying == nil || r.State.NowPlaying.SongID != cmd.SongID {
			return errStale
		}
		return nil
	})
}

// castVote records the vote and the new tally under the room lock, so a
// concurrent skip either sees the vote or clears it. It reports whether the
// tally calls for an automatic skip.
func (s *Service) castVote(ctx context.Context, roomID, username string, cmd protocol.VoteSong) (bool, error) {
	unlock := s.lock(roomID)
	defer unlock()

	live, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return false, err
	}
	if np := live.State.NowPlaying; np == nil || np.SongID != cmd.SongID {
		return false, ErrSongNotPlaying
	}

	tally, err := s.votes.Cast(ctx, roomID, cmd.SongID, username, cmd.Action)
	if err != nil {
		return false, err
	}

	var skip bool
	_, err = s.rooms.Update(ctx, roomID, func(r *store.LiveRoom) error {
		np := r.State.NowPlaying
		if np == nil || np.SongID != cmd.SongID {
			return errStale
		}
		np.Metadata.Likes = tally.Likes
		np.Metadata.Dislikes = tally.Dislikes
		skip = s.shouldAutoSkip(r)
		return nil
	})
	if errors.Is(err, errStale) {
		// skipped elsewhere between the read and the cast
		if err := s.votes.Clear(ctx, roomID, cmd.SongID); err != nil {
			s.log.WithError(err).WithField("room", roomID).Warn("Failed to clear votes")
		}
		return false, ErrSongNotPlaying
	}
	if err != nil {
		return false, err
	}
	s.publish(ctx, roomID, protocol.VoteUpdate{SongID: cmd.SongID, Likes: tally.Likes, Dislikes: tally.Dislikes}, target{})
	return skip, nil
}

func (s *Service) shouldAutoSkip(r *store.LiveRoom) bool {
	n := len(r.State.Participants)
	if s.opts.AutoSkipRatio <= 0 || n < 2 || r.State.NowPlaying == nil {
		return false
	}
	return float64(r.State.NowPlaying.Metadata.Dislikes) > s.opts.AutoSkipRatio*float64(n)
}

// Skip ends the playing song. Only the host may skip.
func (s *Service) Skip(ctx context.Context, roomID, username string) error {
	return s.advance(ctx, roomID, func(r *store.LiveRoom) error {
		return roomsync.Authorize(&r.State, username, protocol.SkipSong{})
	})
}

// advance moves the playing song into the history and starts the next one.
// check runs inside the update; errStale from it turns the call into a no-op.
func (s *Service) advance(ctx context.Context, roomID string, check func(*store.LiveRoom) error) error {
	unlock := s.lock(roomID)
	defer unlock()

	var (
		played *models.Song
		order  int
	)
	live, err := s.rooms.Update(ctx, roomID, func(r *store.LiveRoom) error {
		played = nil
		if err := check(r); err != nil {
			return err
		}
		if r.State.NowPlaying == nil && len(models.Unplayed(r.State.Queue)) == 0 {
			return ErrNothingToSkip
		}
		if np := r.State.NowPlaying; np != nil {
			r.SongsPlayed++
			order = r.SongsPlayed
			song := *np
			played = &song
			marker := models.QueueItem{Song: song, AlreadyPlayed: true, Position: order}
			r.State.Queue = slices.Insert(r.State.Queue, playedCount(r.State.Queue), marker)
			r.State.NowPlaying = nil
		}
		promote(r)
		return nil
	})
	if errors.Is(err, errStale) {
		return nil
	}
	if err != nil {
		return err
	}

	if played != nil {
		if err := s.db.RecordPlayedSong(models.PlayedSongFrom(roomID, *played, order, s.now())); err != nil {
			s.log.WithError(err).WithField("room", roomID).Warn("Failed to record played song")
		}
		if err := s.votes.Clear(ctx, roomID, played.SongID); err != nil {
			s.log.WithError(err).WithField("room", roomID).Warn("Failed to clear votes")
		}
	}
	s.publish(ctx, roomID, protocol.SongChanged{Song: live.State.NowPlaying}, target{})
	s.publish(ctx, roomID, protocol.QueueUpdated{Queue: live.State.Queue}, target{})
	return nil
}

// Reorder moves the listed songs to the front of the queue. Only the host may reorder.
func (s *Service) Reorder(ctx context.Context, roomID, username string, ids []string) error {
	unlock := s.lock(roomID)
	defer unlock()

	live, err := s.rooms.Update(ctx, roomID, func(r *store.LiveRoom) error {
		if err := roomsync.Authorize(&r.State, username, protocol.ReorderQueue{NewOrder: ids}); err != nil {
			return err
		}
		r.State.Queue = models.Reorder(r.State.Queue, ids)
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, roomID, protocol.QueueUpdated{Queue: live.State.Queue}, target{})
	return nil
}

// RemoveSong drops an unplayed song. The host may remove any, others only their own.
func (s *Service) RemoveSong(ctx context.Context, roomID, username, songID string) error {
	unlock := s.lock(roomID)
	defer unlock()

	live, err := s.rooms.Update(ctx, roomID, func(r *store.LiveRoom) error {
		if err := roomsync.Authorize(&r.State, username, protocol.RemoveSong{SongID: songID}); err != nil {
			return err
		}
		i := models.FindQueueItem(r.State.Queue, songID)
		r.State.Queue = slices.Delete(r.State.Queue, i, i+1)
		models.Renumber(r.State.Queue)
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.votes.Clear(ctx, roomID, songID); err != nil {
		s.log.WithError(err).WithField("room", roomID).Warn("Failed to clear votes")
	}
	s.publish(ctx, roomID, protocol.QueueUpdated{Queue: live.State.Queue}, target{})
	return nil
}

// RemoveUser disconnects userToRemove from the room. Only the host may remove
// participants, and not themself.
func (s *Service) RemoveUser(ctx context.Context, roomID, username, userToRemove string) error {
	unlock := s.lock(roomID)
	defer unlock()

	_, err := s.rooms.Update(ctx, roomID, func(r *store.LiveRoom) error {
		if err := roomsync.Authorize(&r.State, username, protocol.RemoveUser{UserID: userToRemove}); err != nil {
			return err
		}
		i := participantIndex(r.State.Participants, userToRemove)
		if i < 0 {
			return ErrNotParticipant
		}
		r.State.Participants = slices.Delete(r.State.Participants, i, i+1)
		r.State.NumberOfUsers = len(r.State.Participants)
		return nil
	})
	if err != nil {
		return err
	}

	removed := protocol.Error{Code: protocol.CodeRemoved, Message: "You were removed from the room by the host"}
	s.publish(ctx, roomID, removed, target{user: userToRemove, close: true})
	s.publish(ctx, roomID, protocol.UserLeft{Username: userToRemove}, target{except: userToRemove})
	s.log.WithFields(logrus.Fields{"room": roomID, "user": userToRemove}).Info("User removed")
	return nil
}

// UpdateSettings changes the room settings. The host cannot be changed and a
// new lifetime counts from the room's creation.
func (s *Service) UpdateSettings(ctx context.Context, roomID, username string, settings models.RoomSettings) (*models.RoomState, error) {
	unlock := s.lock(roomID)
	defer unlock()

	var lifetimeChanged bool
	live, err := s.rooms.Update(ctx, roomID, func(r *store.LiveRoom) error {
		lifetimeChanged = false
		if err := roomsync.Authorize(&r.State, username, protocol.UpdateRoomSettings{Settings: settings}); err != nil {
			return err
		}
		cur := &r.State.Settings
		if name := strings.TrimSpace(settings.RoomName); name != "" {
			cur.RoomName = name
		}
		if settings.MaxUsers > 0 {
			cur.MaxUsers = settings.MaxUsers
		}
		cur.IsPublic = settings.IsPublic
		if settings.Lifetime > 0 {
			if lifetime := s.clampLifetime(settings.Lifetime); lifetime != cur.Lifetime {
				cur.Lifetime = lifetime
				r.ExpiresAt = r.CreatedAt.Add(time.Duration(lifetime) * time.Minute)
				lifetimeChanged = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if lifetimeChanged {
		s.extendHostToken(ctx, roomID, live.ExpiresAt)
		s.scheduleExpiry(ctx, roomID, live.ExpiresAt)
	}
	s.saveRecord(live)
	s.publish(ctx, roomID, protocol.RoomStateUpdate{State: live.State}, target{})
	return &live.State, nil
}

func (s *Service) extendHostToken(ctx context.Context, roomID string, expiresAt time.Time) {
	info, err := s.tokens.GetHostToken(ctx, roomID)
	if err == nil {
		err = s.tokens.RefreshHostToken(ctx, roomID, info.Token, expiresAt)
	}
	if err != nil {
		s.log.WithError(err).WithField("room", roomID).Warn("Failed to move host token expiry")
	}
}

func (s *Service) saveRecord(live *store.LiveRoom) {
	record, err := s.db.GetRoomByID(live.State.RoomID)
	if err != nil {
		s.log.WithError(err).WithField("room", live.State.RoomID).Warn("Failed to load room record")
		return
	}
	record.Name = live.State.Settings.RoomName
	record.MaxUsers = live.State.Settings.MaxUsers
	record.IsPublic = live.State.Settings.IsPublic
	record.Lifetime = live.State.Settings.Lifetime
	if err := s.db.UpdateRoom(record); err != nil {
		s.log.WithError(err).WithField("room", live.State.RoomID).Warn("Failed to update room record")
	}
}

// Chat relays a message to the whole room.
func (s *Service) Chat(ctx context.Context, roomID, username, message string) error {
	message = strings.TrimSpace(message)
	if message == "" || len(message) > maxChatLength {
		return ErrInvalidRequest
	}
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return err
	}
	s.publish(ctx, roomID, protocol.ChatMessage{Username: username, Message: message}, target{})
	return nil
}

// DeleteRoom closes the room for everyone and revokes its host token. The
// room's history stays available.
func (s *Service) DeleteRoom(ctx context.Context, roomID string) error {
	defer s.locks.Delete(roomID)
	unlock := s.lock(roomID)
	defer unlock()

	live, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	s.publish(ctx, roomID, protocol.RoomDeleted{}, target{close: true})

	if err := s.rooms.Delete(ctx, roomID); err != nil {
		return err
	}
	if err := s.tokens.DeleteHostToken(ctx, roomID); err != nil {
		s.log.WithError(err).WithField("room", roomID).Warn("Failed to revoke host token")
	}
	songIDs := make([]string, 0, len(live.State.Queue)+1)
	if live.State.NowPlaying != nil {
		songIDs = append(songIDs, live.State.NowPlaying.SongID)
	}
	for _, item := range live.State.Queue {
		songIDs = append(songIDs, item.Song.SongID)
	}
	if err := s.votes.Clear(ctx, roomID, songIDs...); err != nil {
		s.log.WithError(err).WithField("room", roomID).Warn("Failed to clear votes")
	}
	if err := s.db.CloseRoom(roomID, s.now()); err != nil {
		s.log.WithError(err).WithField("room", roomID).Warn("Failed to close room record")
	}
	s.log.WithField("room", roomID).Info("Room deleted")
	return nil
}

// ExpireRoom deletes the room once its lifetime has passed. Rooms whose
// lifetime was extended are left alone.
func (s *Service) ExpireRoom(ctx context.Context, roomID string) error {
	live, err := s.rooms.Get(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.now().Before(live.ExpiresAt) {
		s.log.WithFields(logrus.Fields{"room": roomID, "expires_at": live.ExpiresAt}).Debug("Room not due yet")
		return nil
	}
	err = s.DeleteRoom(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	return err
}

// HandleCommand applies a command received on username's channel.
func (s *Service) HandleCommand(ctx context.Context, roomID, username string, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.JoinRoom:
		return ErrInvalidRequest
	case protocol.AddSong:
		_, err := s.AddSong(ctx, roomID, username, c)
		return err
	case protocol.VoteSong:
		return s.Vote(ctx, roomID, username, c)
	case protocol.SkipSong:
		return s.Skip(ctx, roomID, username)
	case protocol.ReorderQueue:
		return s.Reorder(ctx, roomID, username, c.NewOrder)
	case protocol.RemoveSong:
		return s.RemoveSong(ctx, roomID, username, c.SongID)
	case protocol.RemoveUser:
		return s.RemoveUser(ctx, roomID, username, c.UserID)
	case protocol.UpdateRoomSettings:
		_, err := s.UpdateSettings(ctx, roomID, username, c.Settings)
		return err
	case protocol.Chat:
		return s.Chat(ctx, roomID, username, c.Message)
	default:
		return protocol.ErrUnknownType
	}
}

type target struct {
	user   string
	except string
	close  bool
}

func (s *Service) publish(ctx context.Context, roomID string, ev protocol.Event, to target) {
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		s.log.WithError(err).WithField("type", ev.EventType()).Error("Failed to encode event")
		return
	}
	err = s.bus.Publish(ctx, events.Event{
		Type:      string(ev.EventType()),
		RoomID:    roomID,
		UserID:    to.user,
		Except:    to.except,
		Close:     to.close,
		Timestamp: s.now(),
		Payload:   frame,
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"room": roomID, "type": ev.EventType()}).Error("Failed to publish event")
	}
}

func (s *Service) lock(roomID string) func() {
	v, _ := s.locks.LoadOrStore(roomID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) scheduleExpiry(ctx context.Context, roomID string, at time.Time) {
	if s.opts.Scheduler == nil {
		return
	}
	if err := s.opts.Scheduler.ScheduleExpiry(ctx, roomID, at); err != nil {
		s.log.WithError(err).WithField("room", roomID).Error("Failed to schedule room expiry")
	}
}

func (s *Service) clampLifetime(minutes int) int {
	if minutes <= 0 {
		return s.opts.DefaultLifetime
	}
	return min(minutes, s.opts.MaxLifetime)
}

// promote starts the first unplayed song when nothing is playing.
func promote(r *store.LiveRoom) bool {
	if r.State.NowPlaying != nil {
		return false
	}
	for i, item := range r.State.Queue {
		if item.AlreadyPlayed {
			continue
		}
		song := item.Song
		r.State.NowPlaying = &song
		r.State.Queue = slices.Delete(r.State.Queue, i, i+1)
		models.Renumber(r.State.Queue)
		return true
	}
	return false
}

func playedCount(queue []models.QueueItem) int {
	n := 0
	for _, item := range queue {
		if item.AlreadyPlayed {
			n++
		}
	}
	return n
}

func participantIndex(participants []models.Participant, username string) int {
	for i, p := range participants {
		if p.Username == username {
			return i
		}
	}
	return -1
}

func full(r *store.LiveRoom) bool {
	limit := r.State.Settings.MaxUsers
	return limit > 0 && len(r.State.Participants) >= limit
}

func checkPassword(r *store.LiveRoom, password string) error {
	if bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(password)) != nil {
		return ErrInvalidPassword
	}
	return nil
}

func randomCode(n int) string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:n]
}
