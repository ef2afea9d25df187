package roomsync

import (
	"sync"
	"time"

	"github.com/beatbus/room-sync/pkg/models"
)

const DefaultPendingTTL = 5 * time.Second

// Store holds the authoritative room state of one membership together with
// the speculative overlays (optimistic song adds and a local reorder) that are
// rendered on top of it. Only the dispatcher writes the authoritative part.
type Store struct {
	mu   sync.RWMutex
	room *models.RoomState
	dead bool

	pending  []pendingSong
	order    []string
	orderTTL time.Time
	orderSeq uint64

	ttl time.Duration
	now func() time.Time
}

type pendingSong struct {
	item    models.QueueItem
	expires time.Time
}

func newStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &Store{ttl: ttl, now: time.Now}
}

// Room returns a copy of the authoritative state, or nil before the first snapshot.
func (s *Store) Room() *models.RoomState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room.Clone()
}

// read runs fn against the live state under the read lock. fn must not retain r.
func (s *Store) read(fn func(r *models.RoomState) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.room)
}

func (s *Store) nowPlayingID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.room == nil || s.room.NowPlaying == nil {
		return ""
	}
	return s.room.NowPlaying.SongID
}

// Pending returns the unexpired optimistic additions.
func (s *Store) Pending() []models.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	out := make([]models.QueueItem, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.item)
	}
	return out
}

// Rendered is the queue to display: the authoritative queue, rearranged by a
// local reorder that the server has not answered yet, followed by pending adds.
func (s *Store) Rendered() []models.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	if s.room == nil {
		return nil
	}

	queue := models.CloneQueue(s.room.Queue)
	if s.order != nil {
		queue = models.Reorder(queue, s.order)
	}
	last := 0
	for _, item := range queue {
		if !item.AlreadyPlayed && item.Position > last {
			last = item.Position
		}
	}
	for i, p := range s.pending {
		item := p.item
		item.Position = last + i + 1
		queue = append(queue, item)
	}
	return queue
}

func (s *Store) pruneLocked() {
	now := s.now()
	kept := s.pending[:0]
	for _, p := range s.pending {
		if now.Before(p.expires) {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	if s.order != nil && !now.Before(s.orderTTL) {
		s.order = nil
	}
}

// replace installs a full snapshot, superseding every overlay.
func (s *Store) replace(state models.RoomState) {
	state.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return
	}
	s.room = state.Clone()
	s.pending = nil
	s.order = nil
	s.orderSeq++
}

// setQueue replaces the queue verbatim. It reports false before the first snapshot.
func (s *Store) setQueue(queue []models.QueueItem) bool {
	queue = models.NormalizeQueue(models.CloneQueue(queue))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead || s.room == nil {
		return false
	}
	s.room.Queue = queue
	s.pending = nil
	s.order = nil
	s.orderSeq++
	return true
}

func (s *Store) setNowPlaying(song *models.Song) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead || s.room == nil {
		return false
	}
	if song == nil {
		s.room.NowPlaying = nil
		return true
	}
	cp := *song
	cp.Normalize()
	s.room.NowPlaying = &cp
	return true
}

// setVotes overwrites the tallies of the now-playing song when songID matches it.
func (s *Store) setVotes(songID string, likes, dislikes int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead || s.room == nil || s.room.NowPlaying == nil || s.room.NowPlaying.SongID != songID {
		return false
	}
	s.room.NowPlaying.Metadata.Likes = max(likes, 0)
	s.room.NowPlaying.Metadata.Dislikes = max(dislikes, 0)
	return true
}

// adjustUsers changes the participant count by delta, floored at zero.
func (s *Store) adjustUsers(delta int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead || s.room == nil {
		return false
	}
	s.room.NumberOfUsers = max(s.room.NumberOfUsers+delta, 0)
	return true
}

func (s *Store) addPending(item models.QueueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return
	}
	s.pending = append(s.pending, pendingSong{item: item, expires: s.now().Add(s.ttl)})
}

// dropPending removes the optimistic add with songID, if still present.
func (s *Store) dropPending(songID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.item.Song.SongID != songID {
			kept = append(kept, p)
		}
	}
	s.pending = kept
}

// setLocalOrder installs a speculative order. The returned func restores the
// previous overlay unless something has replaced this one in the meantime.
func (s *Store) setLocalOrder(ids []string) (undo func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return func() {}
	}
	prev, prevTTL := s.order, s.orderTTL
	s.orderSeq++
	seq := s.orderSeq
	s.order = append([]string(nil), ids...)
	s.orderTTL = s.now().Add(s.ttl)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.orderSeq == seq && s.order != nil {
			s.order, s.orderTTL = prev, prevTTL
		}
	}
}

// destroy drops all state; later writes are ignored.
func (s *Store) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = true
	s.room = nil
	s.pending = nil
	s.order = nil
}
