package roomsync

import (
	"errors"

	"github.com/beatbus/room-sync/pkg/models"
	"github.com/beatbus/room-sync/pkg/protocol"
)

var (
	ErrNoRoomState       = errors.New("room state not loaded")
	ErrNotHost           = errors.New("only the host can do that")
	ErrNotSongOwner      = errors.New("only the host or the person who added the song can remove it")
	ErrSongAlreadyPlayed = errors.New("song has already been played")
	ErrSongNotFound      = errors.New("song not in queue")
	ErrRemoveSelf        = errors.New("host cannot remove themself")
)

// IsHost compares username against the room's host.
func IsHost(state *models.RoomState, username string) bool {
	return state != nil && username != "" && state.Settings.HostUsername == username
}

// Authorize decides whether username may send cmd given the room state. It
// is applied on the client before a command leaves and again by the server,
// which remains the authority.
func Authorize(state *models.RoomState, username string, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.JoinRoom, protocol.AddSong, protocol.VoteSong, protocol.Chat:
		return nil
	case protocol.SkipSong, protocol.ReorderQueue, protocol.UpdateRoomSettings:
		return requireHost(state, username)
	case protocol.RemoveUser:
		if err := requireHost(state, username); err != nil {
			return err
		}
		if c.UserID == username {
			return ErrRemoveSelf
		}
		return nil
	case protocol.RemoveSong:
		return canRemoveSong(state, username, c.SongID)
	default:
		return protocol.ErrUnknownType
	}
}

func requireHost(state *models.RoomState, username string) error {
	if state == nil {
		return ErrNoRoomState
	}
	if !IsHost(state, username) {
		return ErrNotHost
	}
	return nil
}

func canRemoveSong(state *models.RoomState, username, songID string) error {
	if state == nil {
		return ErrNoRoomState
	}
	i := models.FindQueueItem(state.Queue, songID)
	if i < 0 {
		return ErrSongNotFound
	}
	item := state.Queue[i]
	if item.AlreadyPlayed {
		return ErrSongAlreadyPlayed
	}
	if IsHost(state, username) || item.Song.Metadata.AddedBy == username {
		return nil
	}
	return ErrNotSongOwner
}
