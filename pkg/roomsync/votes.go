package roomsync

import (
	"sync"

	"github.com/beatbus/room-sync/pkg/protocol"
)

// VoteState is the local user's current vote on the now-playing song.
type VoteState int

const (
	VoteNone VoteState = iota
	VoteLiked
	VoteDisliked
)

func (v VoteState) String() string {
	switch v {
	case VoteLiked:
		return "liked"
	case VoteDisliked:
		return "disliked"
	}
	return "none"
}

// Direction is what the user asked for when pressing a vote button.
type Direction int

const (
	DirectionLike Direction = iota
	DirectionDislike
)

// VotePlan is the outcome of a toggle: the command action to send and the
// state to adopt once it has been handed to the channel.
type VotePlan struct {
	SongID string
	Action protocol.VoteAction
	Next   VoteState
}

// VoteReconciler turns like/dislike toggles into vote commands. It never
// touches the displayed tallies; those only follow vote_update events.
type VoteReconciler struct {
	mu     sync.Mutex
	songID string
	state  VoteState
}

func (r *VoteReconciler) State() VoteState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SongID is the song the current state refers to.
func (r *VoteReconciler) SongID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.songID
}

// Reset forgets any vote and starts tracking songID.
func (r *VoteReconciler) Reset(songID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.songID = songID
	r.state = VoteNone
}

// Plan computes the command for a toggle on songID without changing state.
// Pressing the active direction again removes the vote; the other direction
// replaces it with a single command.
func (r *VoteReconciler) Plan(songID string, dir Direction) VotePlan {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.state
	if r.songID != songID {
		current = VoteNone
	}

	switch dir {
	case DirectionLike:
		if current == VoteLiked {
			return VotePlan{SongID: songID, Action: protocol.VoteRemoveLike, Next: VoteNone}
		}
		return VotePlan{SongID: songID, Action: protocol.VoteLike, Next: VoteLiked}
	default:
		if current == VoteDisliked {
			return VotePlan{SongID: songID, Action: protocol.VoteRemoveDislike, Next: VoteNone}
		}
		return VotePlan{SongID: songID, Action: protocol.VoteDislike, Next: VoteDisliked}
	}
}

// Commit adopts p.Next. A plan made for a song that is no longer tracked is
// dropped, unless nothing has been tracked yet.
func (r *VoteReconciler) Commit(p VotePlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.songID != "" && r.songID != p.SongID {
		return
	}
	r.songID = p.SongID
	r.state = p.Next
}
