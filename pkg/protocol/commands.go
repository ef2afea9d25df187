package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/beatbus/room-sync/pkg/models"
)

type CommandType string

const (
	CommandJoinRoom       CommandType = "join_room"
	CommandAddSong        CommandType = "add_song"
	CommandVoteSong       CommandType = "vote_song"
	CommandSkipSong       CommandType = "skip_song"
	CommandReorderQueue   CommandType = "reorder_queue"
	CommandRemoveSong     CommandType = "remove_song"
	CommandRemoveUser     CommandType = "remove_user"
	CommandUpdateSettings CommandType = "update_room_settings"
	CommandChat           CommandType = "chat_message"
)

type VoteAction string

const (
	VoteLike          VoteAction = "like"
	VoteDislike       VoteAction = "dislike"
	VoteRemoveLike    VoteAction = "remove-like"
	VoteRemoveDislike VoteAction = "remove-dislike"
)

func (a VoteAction) Valid() bool {
	switch a {
	case VoteLike, VoteDislike, VoteRemoveLike, VoteRemoveDislike:
		return true
	}
	return false
}

// Command is a message sent by a client.
type Command interface {
	CommandType() CommandType
	isCommand()
}

type JoinRoom struct {
	RoomID       string `json:"roomId"`
	RoomPassword string `json:"roomPassword"`
	Username     string `json:"username"`
}

type AddSong struct {
	SongName   string `json:"songName"`
	ArtistName string `json:"artistName"`
	AlbumName  string `json:"albumName,omitempty"`
	AddedBy    string `json:"addedBy"`
}

type VoteSong struct {
	Action VoteAction `json:"action"`
	SongID string     `json:"songId"`
}

type SkipSong struct{}

// ReorderQueue lists song ids in their new order. Positions are assigned by the server.
type ReorderQueue struct {
	NewOrder []string `json:"newOrder"`
}

type RemoveSong struct {
	SongID string `json:"songId"`
}

type RemoveUser struct {
	UserID string `json:"userId"`
}

// UpdateRoomSettings carries the settings object itself as payload.
type UpdateRoomSettings struct {
	Settings models.RoomSettings
}

type Chat struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

func (JoinRoom) CommandType() CommandType           { return CommandJoinRoom }
func (AddSong) CommandType() CommandType            { return CommandAddSong }
func (VoteSong) CommandType() CommandType           { return CommandVoteSong }
func (SkipSong) CommandType() CommandType           { return CommandSkipSong }
func (ReorderQueue) CommandType() CommandType       { return CommandReorderQueue }
func (RemoveSong) CommandType() CommandType         { return CommandRemoveSong }
func (RemoveUser) CommandType() CommandType         { return CommandRemoveUser }
func (UpdateRoomSettings) CommandType() CommandType { return CommandUpdateSettings }
func (Chat) CommandType() CommandType               { return CommandChat }

func (JoinRoom) isCommand()           {}
func (AddSong) isCommand()            {}
func (VoteSong) isCommand()           {}
func (SkipSong) isCommand()           {}
func (ReorderQueue) isCommand()       {}
func (RemoveSong) isCommand()         {}
func (RemoveUser) isCommand()         {}
func (UpdateRoomSettings) isCommand() {}
func (Chat) isCommand()               {}

func EncodeCommand(cmd Command) ([]byte, error) {
	var payload any = cmd
	if s, ok := cmd.(UpdateRoomSettings); ok {
		payload = s.Settings
	}
	return encode(string(cmd.CommandType()), payload)
}

func DecodeCommand(data []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	var (
		cmd Command
		err error
	)
	switch CommandType(env.Type) {
	case CommandJoinRoom:
		var c JoinRoom
		err = decodePayload(env.Payload, &c)
		cmd = c
	case CommandAddSong:
		var c AddSong
		err = decodePayload(env.Payload, &c)
		cmd = c
	case CommandVoteSong:
		var c VoteSong
		err = decodePayload(env.Payload, &c)
		cmd = c
	case CommandSkipSong:
		cmd = SkipSong{}
	case CommandReorderQueue:
		var c ReorderQueue
		err = decodePayload(env.Payload, &c)
		cmd = c
	case CommandRemoveSong:
		var c RemoveSong
		err = decodePayload(env.Payload, &c)
		cmd = c
	case CommandRemoveUser:
		var c RemoveUser
		err = decodePayload(env.Payload, &c)
		cmd = c
	case CommandUpdateSettings:
		var s models.RoomSettings
		err = decodePayload(env.Payload, &s)
		cmd = UpdateRoomSettings{Settings: s}
	case CommandChat:
		var c Chat
		err = decodePayload(env.Payload, &c)
		cmd = c
	default:
		return nil, fmt.Errorf("command %q: %w", env.Type, ErrUnknownType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}
	return cmd, nil
}
