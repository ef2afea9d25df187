package models

// Unknown replaces string fields missing from a payload.
const Unknown = "unknown"

// RoomSettings are the host-controlled properties of a room.
type RoomSettings struct {
	RoomName     string `json:"roomName"`
	HostUsername string `json:"hostUsername"`
	MaxUsers     int    `json:"maxUsers"`
	IsPublic     bool   `json:"isPublic"`
	Lifetime     int    `json:"lifetime"` // minutes
}

// SongStats describes the recording itself.
type SongStats struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration,omitempty"` // seconds
}

// SongMetadata is the room-scoped, mutable part of a song.
type SongMetadata struct {
	AddedBy  string `json:"addedBy"`
	Likes    int    `json:"likes"`
	Dislikes int    `json:"dislikes"`
}

type Song struct {
	SongID   string       `json:"songId"`
	Stats    SongStats    `json:"stats"`
	Metadata SongMetadata `json:"metadata"`
}

// QueueItem wraps a song with its place in the room queue. Position is only
// meaningful (unique, dense from 1) among items that have not been played.
type QueueItem struct {
	Song          Song `json:"song"`
	AlreadyPlayed bool `json:"alreadyPlayed"`
	Position      int  `json:"position"`
}

type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsHost   bool   `json:"isHost"`
}

// RoomState is the complete live state of a room as carried by a snapshot.
type RoomState struct {
	RoomID        string        `json:"roomID"`
	Settings      RoomSettings  `json:"roomSettings"`
	NumberOfUsers int           `json:"numberOfUsers"`
	NowPlaying    *Song         `json:"nowPlaying"`
	Queue         []QueueItem   `json:"queue"`
	Participants  []Participant `json:"participants,omitempty"`
}

// Normalize fills missing strings with Unknown and clamps negative counts.
func (s *Song) Normalize() {
	if s.SongID == "" {
		s.SongID = Unknown
	}
	if s.Stats.Title == "" {
		s.Stats.Title = Unknown
	}
	if s.Stats.Artist == "" {
		s.Stats.Artist = Unknown
	}
	if s.Stats.Duration < 0 {
		s.Stats.Duration = 0
	}
	if s.Metadata.AddedBy == "" {
		s.Metadata.AddedBy = Unknown
	}
	if s.Metadata.Likes < 0 {
		s.Metadata.Likes = 0
	}
	if s.Metadata.Dislikes < 0 {
		s.Metadata.Dislikes = 0
	}
}

func (q *QueueItem) Normalize() {
	q.Song.Normalize()
	if q.Position < 0 {
		q.Position = 0
	}
}

// NormalizeQueue normalizes every item in place and returns the slice,
// replacing nil with an empty queue.
func NormalizeQueue(queue []QueueItem) []QueueItem {
	if queue == nil {
		return []QueueItem{}
	}
	for i := range queue {
		queue[i].Normalize()
	}
	return queue
}

func (r *RoomState) Normalize() {
	if r.RoomID == "" {
		r.RoomID = Unknown
	}
	if r.Settings.RoomName == "" {
		r.Settings.RoomName = Unknown
	}
	if r.Settings.HostUsername == "" {
		r.Settings.HostUsername = Unknown
	}
	if r.NumberOfUsers < 0 {
		r.NumberOfUsers = 0
	}
	if r.NowPlaying != nil {
		r.NowPlaying.Normalize()
	}
	r.Queue = NormalizeQueue(r.Queue)
}

// Clone returns a deep copy that shares no slices or pointers with r.
func (r *RoomState) Clone() *RoomState {
	if r == nil {
		return nil
	}
	out := *r
	if r.NowPlaying != nil {
		song := *r.NowPlaying
		out.NowPlaying = &song
	}
	out.Queue = CloneQueue(r.Queue)
	if r.Participants != nil {
		out.Participants = append([]Participant(nil), r.Participants...)
	}
	return &out
}

func CloneQueue(queue []QueueItem) []QueueItem {
	if queue == nil {
		return nil
	}
	return append([]QueueItem(nil), queue...)
}

// FindQueueItem returns the index of the item holding songID, or -1.
func FindQueueItem(queue []QueueItem, songID string) int {
	for i := range queue {
		if queue[i].Song.SongID == songID {
			return i
		}
	}
	return -1
}

// Unplayed returns the items that have not been played, in queue order.
func Unplayed(queue []QueueItem) []QueueItem {
	out := make([]QueueItem, 0, len(queue))
	for _, item := range queue {
		if !item.AlreadyPlayed {
			out = append(out, item)
		}
	}
	return out
}

// Renumber assigns positions 1..n to the unplayed items in slice order.
// Played items keep their position.
func Renumber(queue []QueueItem) {
	pos := 1
	for i := range queue {
		if queue[i].AlreadyPlayed {
			continue
		}
		queue[i].Position = pos
		pos++
	}
}

// Reorder returns a copy of queue in which the unplayed items named by ids
// come first, in that order, followed by the remaining unplayed items in
// their current order. Unknown ids are ignored and played items keep their
// slots. Unplayed positions are renumbered from 1.
func Reorder(queue []QueueItem, ids []string) []QueueItem {
	byID := make(map[string]QueueItem, len(queue))
	unplayed := 0
	for _, item := range queue {
		if !item.AlreadyPlayed {
			byID[item.Song.SongID] = item
			unplayed++
		}
	}
	if len(byID) != unplayed {
		// duplicate ids; the order cannot be applied unambiguously
		return CloneQueue(queue)
	}

	ordered := make([]QueueItem, 0, unplayed)
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
			delete(byID, id)
		}
	}
	for _, item := range queue {
		if item.AlreadyPlayed {
			continue
		}
		if _, ok := byID[item.Song.SongID]; ok {
			ordered = append(ordered, item)
		}
	}

	out := make([]QueueItem, 0, len(queue))
	next := 0
	for _, item := range queue {
		if item.AlreadyPlayed {
			out = append(out, item)
			continue
		}
		out = append(out, ordered[next])
		next++
	}
	Renumber(out)
	return out
}
