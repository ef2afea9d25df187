package roomsync

import (
	"sync"
)

// Status is the lifecycle state of a room membership.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
	StatusRoomGone
	StatusAuthFailed
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusRoomGone:
		return "room_gone"
	case StatusAuthFailed:
		return "auth_failed"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal states are never left and stop all reconnection.
func (s Status) Terminal() bool {
	return s == StatusRoomGone || s == StatusAuthFailed || s == StatusClosed
}

// Lifecycle tracks the status of one handle.
type Lifecycle struct {
	mu       sync.Mutex
	status   Status
	reason   error
	onChange func(Status, error)
}

func newLifecycle(onChange func(Status, error)) *Lifecycle {
	return &Lifecycle{status: StatusConnecting, onChange: onChange}
}

func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Err is the reason recorded with the latest transition, if any.
func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// transition moves to next and reports whether the status changed. A
// terminal status absorbs every later transition.
func (l *Lifecycle) transition(next Status, reason error) bool {
	l.mu.Lock()
	if l.status.Terminal() || l.status == next {
		l.mu.Unlock()
		return false
	}
	l.status = next
	l.reason = reason
	cb := l.onChange
	l.mu.Unlock()

	if cb != nil {
		cb(next, reason)
	}
	return true
}
