// Package protocol defines the messages exchanged over a room's event channel.
//
// Every frame is a JSON envelope {"type": ..., "payload": ...}. Inbound server
// messages decode to an Event and outbound client messages to a Command; both
// are closed sets, so a type switch over them covers every kind.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/beatbus/room-sync/pkg/models"
)

var ErrUnknownType = errors.New("unknown message type")

type EventType string

const (
	EventRoomState    EventType = "room_state_update"
	EventQueueUpdated EventType = "queue_updated"
	EventSongChanged  EventType = "song_changed"
	EventVoteUpdate   EventType = "vote_update"
	EventUserJoined   EventType = "user_joined"
	EventUserLeft     EventType = "user_left"
	EventRoomDeleted  EventType = "room_deleted"
	EventError        EventType = "error"
	EventChatMessage  EventType = "chat_message"
)

// Error codes carried by an Error event.
const (
	CodeAuthFailed   = "auth_failed"
	CodeRoomNotFound = "room_not_found"
	CodeRoomFull     = "room_full"
	CodeRemoved      = "removed"
	CodeForbidden    = "forbidden"
	CodeBadRequest   = "bad_request"
	CodeInternal     = "internal"
)

// Envelope is the wire frame shared by events and commands.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is a message pushed by the server.
type Event interface {
	EventType() EventType
	isEvent()
}

// RoomStateUpdate carries the complete room state; its payload is the state itself.
type RoomStateUpdate struct {
	State models.RoomState
}

type QueueUpdated struct {
	Queue []models.QueueItem `json:"queue"`
}

type SongChanged struct {
	Song *models.Song `json:"song"`
}

type VoteUpdate struct {
	SongID   string `json:"songId"`
	Likes    int    `json:"likes"`
	Dislikes int    `json:"dislikes"`
}

type UserJoined struct {
	Username string `json:"username"`
}

type UserLeft struct {
	Username string `json:"username"`
}

type RoomDeleted struct{}

type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ChatMessage struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

func (RoomStateUpdate) EventType() EventType { return EventRoomState }
func (QueueUpdated) EventType() EventType    { return EventQueueUpdated }
func (SongChanged) EventType() EventType     { return EventSongChanged }
func (VoteUpdate) EventType() EventType      { return EventVoteUpdate }
func (UserJoined) EventType() EventType      { return EventUserJoined }
func (UserLeft) EventType() EventType        { return EventUserLeft }
func (RoomDeleted) EventType() EventType     { return EventRoomDeleted }
func (Error) EventType() EventType           { return EventError }
func (ChatMessage) EventType() EventType     { return EventChatMessage }

func (RoomStateUpdate) isEvent() {}
func (QueueUpdated) isEvent()    {}
func (SongChanged) isEvent()     {}
func (VoteUpdate) isEvent()      {}
func (UserJoined) isEvent()      {}
func (UserLeft) isEvent()        {}
func (RoomDeleted) isEvent()     {}
func (Error) isEvent()           {}
func (ChatMessage) isEvent()     {}

// Terminal reports whether the error ends the membership for good.
func (e Error) Terminal() bool {
	switch e.Code {
	case CodeAuthFailed, CodeRoomNotFound, CodeRoomFull, CodeRemoved:
		return true
	}
	return false
}

func (e Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// EncodeEvent renders an event as a wire frame.
func EncodeEvent(ev Event) ([]byte, error) {
	var payload any = ev
	if s, ok := ev.(RoomStateUpdate); ok {
		payload = s.State
	}
	return encode(string(ev.EventType()), payload)
}

// DecodeEvent parses a wire frame into its event. Payload fields that are
// missing decode as zero values; callers normalize before use.
func DecodeEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch EventType(env.Type) {
	case EventRoomState:
		var s models.RoomState
		err = decodePayload(env.Payload, &s)
		ev = RoomStateUpdate{State: s}
	case EventQueueUpdated:
		var q QueueUpdated
		err = decodePayload(env.Payload, &q)
		ev = q
	case EventSongChanged:
		var s SongChanged
		err = decodePayload(env.Payload, &s)
		ev = s
	case EventVoteUpdate:
		var v VoteUpdate
		err = decodePayload(env.Payload, &v)
		ev = v
	case EventUserJoined:
		var u UserJoined
		err = decodePayload(env.Payload, &u)
		ev = u
	case EventUserLeft:
		var u UserLeft
		err = decodePayload(env.Payload, &u)
		ev = u
	case EventRoomDeleted:
		ev = RoomDeleted{}
	case EventError:
		var e Error
		err = decodePayload(env.Payload, &e)
		ev = e
	case EventChatMessage:
		var c ChatMessage
		err = decodePayload(env.Payload, &c)
		ev = c
	default:
		return nil, fmt.Errorf("event %q: %w", env.Type, ErrUnknownType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}
	return ev, nil
}

func encode(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
