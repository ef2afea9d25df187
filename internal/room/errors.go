package room

import (
	"errors"
	"net/http"

	"github.com/beatbus/room-sync/pkg/database"
	"github.com/beatbus/room-sync/pkg/protocol"
	"github.com/beatbus/room-sync/pkg/roomsync"
)

// ErrorCode maps a service error to the code of an error event.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, database.ErrNotFound):
		return protocol.CodeRoomNotFound
	case errors.Is(err, ErrInvalidPassword):
		return protocol.CodeAuthFailed
	case errors.Is(err, ErrRoomFull):
		return protocol.CodeRoomFull
	case errors.Is(err, roomsync.ErrNotHost),
		errors.Is(err, roomsync.ErrNotSongOwner),
		errors.Is(err, roomsync.ErrRemoveSelf):
		return protocol.CodeForbidden
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrSongNotPlaying),
		errors.Is(err, ErrNothingToSkip),
		errors.Is(err, ErrNoRecipient),
		errors.Is(err, roomsync.ErrSongNotFound),
		errors.Is(err, roomsync.ErrSongAlreadyPlayed),
		errors.Is(err, protocol.ErrUnknownType):
		return protocol.CodeBadRequest
	}
	return protocol.CodeInternal
}

// ErrorEvent renders err for the client that caused it. Internal failures
// are not described.
func ErrorEvent(err error) protocol.Error {
	code := ErrorCode(err)
	msg := err.Error()
	if code == protocol.CodeInternal {
		msg = "internal server error"
	}
	return protocol.Error{Code: code, Message: msg}
}

// StatusCode maps a service error to an HTTP status.
func StatusCode(err error) int {
	switch ErrorCode(err) {
	case protocol.CodeRoomNotFound:
		return http.StatusNotFound
	case protocol.CodeAuthFailed:
		return http.StatusUnauthorized
	case protocol.CodeRoomFull, protocol.CodeForbidden:
		return http.StatusForbidden
	case protocol.CodeBadRequest:
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrNoScheduler) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
