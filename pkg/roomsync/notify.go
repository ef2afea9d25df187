package roomsync

import (
	"strings"
	"sync"
)

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

// Notice is a human-readable notification for the presentation layer.
type Notice struct {
	Level   NoticeLevel
	Key     string
	Message string
}

const (
	keyDisconnected = "disconnected"
	keyRoomGone     = "room_gone"
	keyAuthFailed   = "auth_failed"
	keyRejected     = "rejected:"
	keyServerError  = "server_error:"
)

// notifier emits one failure notice per condition until that condition clears.
type notifier struct {
	mu     sync.Mutex
	active map[string]struct{}
	emit   func(Notice)
}

func newNotifier(emit func(Notice)) *notifier {
	return &notifier{active: make(map[string]struct{}), emit: emit}
}

// raise reports whether a notice was emitted.
func (n *notifier) raise(key, msg string) bool {
	n.mu.Lock()
	if _, ok := n.active[key]; ok {
		n.mu.Unlock()
		return false
	}
	n.active[key] = struct{}{}
	n.mu.Unlock()

	if n.emit != nil {
		n.emit(Notice{Level: NoticeError, Key: key, Message: msg})
	}
	return true
}

func (n *notifier) clear(keys ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range keys {
		delete(n.active, k)
	}
}

// clearPrefix drops every active condition whose key starts with prefix.
func (n *notifier) clearPrefix(prefix string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for k := range n.active {
		if strings.HasPrefix(k, prefix) {
			delete(n.active, k)
		}
	}
}

func (n *notifier) info(msg string) {
	if n.emit != nil {
		n.emit(Notice{Level: NoticeInfo, Message: msg})
	}
}
