package roomsync

import "errors"

var (
	ErrNotConnected   = errors.New("not connected to room")
	ErrOutboundFull   = errors.New("outbound queue full")
	ErrClosed         = errors.New("room handle closed")
	ErrAuthFailed     = errors.New("room authentication failed")
	ErrRoomGone       = errors.New("room closed by host")
	ErrRemoved        = errors.New("removed from room")
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrNoTransport    = errors.New("no transport configured")
	ErrInvalidRoom    = errors.New("room id and username are required")
)
