package roomsync

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/beatbus/room-sync/pkg/models"
	"github.com/beatbus/room-sync/pkg/protocol"
)

// Hooks receive everything a presentation layer needs. They run on the
// goroutine that produced the change and must not block.
type Hooks struct {
	OnStatus func(Status, error)
	OnNotice func(Notice)
	OnState  func(View)
	OnChat   func(username, message string)
}

// View is a consistent read of one membership for rendering.
type View struct {
	Status  Status
	Room    *models.RoomState
	Queue   []models.QueueItem // authoritative queue plus overlays
	Pending []models.QueueItem
	Vote    VoteState
	IsHost  bool
}

// dispatcher applies inbound events to the store and turns intents into
// commands. deliver is serialized; the store is written nowhere else.
type dispatcher struct {
	mu       sync.Mutex
	username string
	store    *Store
	votes    *VoteReconciler
	life     *Lifecycle
	notes    *notifier
	hooks    Hooks
	log      *logrus.Entry

	gen    atomic.Uint64
	closed atomic.Bool

	send       func(protocol.Command) error
	onTerminal func()
}

// advance starts a new connection generation and returns it.
func (d *dispatcher) advance() uint64 {
	return d.gen.Add(1)
}

func (d *dispatcher) shutdown() {
	d.closed.Store(true)
}

func (d *dispatcher) stale(gen uint64) bool {
	return d.closed.Load() || gen != d.gen.Load() || d.life.Status().Terminal()
}

// deliver applies ev if it belongs to the live generation. It reports
// whether the event was processed.
func (d *dispatcher) deliver(gen uint64, ev protocol.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stale(gen) {
		d.log.WithField("event", ev.EventType()).Debug("discarding event for stale connection")
		return false
	}

	changed := false
	switch e := ev.(type) {
	case protocol.RoomStateUpdate:
		d.store.replace(e.State)
		if id := d.store.nowPlayingID(); id != d.votes.SongID() {
			d.votes.Reset(id)
		}
		if d.life.transition(StatusConnected, nil) {
			d.notes.clear(keyDisconnected)
		}
		changed = true

	case protocol.QueueUpdated:
		changed = d.store.setQueue(e.Queue)

	case protocol.SongChanged:
		changed = d.store.setNowPlaying(e.Song)
		if changed {
			d.votes.Reset(d.store.nowPlayingID())
			if e.Song != nil {
				song := *e.Song
				song.Normalize()
				d.notes.info(fmt.Sprintf("Now playing: %s by %s", song.Stats.Title, song.Stats.Artist))
			}
		}

	case protocol.VoteUpdate:
		changed = d.store.setVotes(e.SongID, e.Likes, e.Dislikes)

	case protocol.UserJoined:
		changed = d.store.adjustUsers(1)
		if changed && e.Username != "" && e.Username != d.username {
			d.notes.info(e.Username + " joined the room")
		}

	case protocol.UserLeft:
		changed = d.store.adjustUsers(-1)
		if changed && e.Username != "" {
			d.notes.info(e.Username + " left the room")
		}

	case protocol.RoomDeleted:
		d.fail(StatusRoomGone, ErrRoomGone)
		return true

	case protocol.Error:
		d.handleError(e)
		return true

	case protocol.ChatMessage:
		if d.hooks.OnChat != nil {
			d.hooks.OnChat(e.Username, e.Message)
		}
		return true

	default:
		d.log.WithField("event", ev.EventType()).Warn("unhandled event")
		return false
	}

	if changed {
		d.notes.clearPrefix(keyRejected)
		d.notes.clearPrefix(keyServerError)
		d.publish()
	}
	return true
}

func (d *dispatcher) handleError(e protocol.Error) {
	if !e.Terminal() {
		d.log.WithField("code", e.Code).Warn(e.Message)
		d.notes.raise(keyServerError+e.Error(), e.Message)
		return
	}
	switch e.Code {
	case protocol.CodeAuthFailed, protocol.CodeRoomFull:
		d.fail(StatusAuthFailed, fmt.Errorf("%w: %v", ErrAuthFailed, e))
	case protocol.CodeRemoved:
		d.fail(StatusRoomGone, fmt.Errorf("%w: %s", ErrRemoved, e.Message))
	default:
		d.fail(StatusRoomGone, fmt.Errorf("%w: %v", ErrRoomGone, e))
	}
}

// fail moves to a terminal status, tells the user once and tears the
// membership down.
func (d *dispatcher) fail(status Status, reason error) {
	if !d.life.transition(status, reason) {
		return
	}
	d.shutdown()
	switch status {
	case StatusAuthFailed:
		d.notes.raise(keyAuthFailed, "Could not join the room: "+reason.Error())
	case StatusRoomGone:
		if errors.Is(reason, ErrRemoved) {
			d.notes.raise(keyRoomGone, "You were removed from the room")
			break
		}
		d.notes.raise(keyRoomGone, "The room is no longer available")
	}
	if d.onTerminal != nil {
		d.onTerminal()
	}
}

func (d *dispatcher) view() View {
	room := d.store.Room()
	return View{
		Status:  d.life.Status(),
		Room:    room,
		Queue:   d.store.Rendered(),
		Pending: d.store.Pending(),
		Vote:    d.votes.State(),
		IsHost:  IsHost(room, d.username),
	}
}

func (d *dispatcher) publish() {
	if d.hooks.OnState != nil {
		d.hooks.OnState(d.view())
	}
}

// issue authorizes cmd against the current state and hands it to the
// channel without waiting for the server.
func (d *dispatcher) issue(cmd protocol.Command) error {
	if err := d.authorize(cmd); err != nil {
		return err
	}
	return d.send(cmd)
}

func (d *dispatcher) authorize(cmd protocol.Command) error {
	if d.closed.Load() {
		return ErrClosed
	}
	err := d.store.read(func(r *models.RoomState) error {
		return Authorize(r, d.username, cmd)
	})
	if err != nil {
		d.notes.raise(keyRejected+string(cmd.CommandType())+":"+err.Error(), err.Error())
	}
	return err
}

// addSong shows the song as pending before the command leaves, so that the
// queue_updated answering it always finds the overlay to discard.
func (d *dispatcher) addSong(title, artist, album string) error {
	cmd := protocol.AddSong{SongName: title, ArtistName: artist, AlbumName: album, AddedBy: d.username}
	if err := d.authorize(cmd); err != nil {
		return err
	}
	item := models.QueueItem{Song: models.Song{
		SongID:   "pending-" + uuid.NewString(),
		Stats:    models.SongStats{Title: title, Artist: artist, Album: album},
		Metadata: models.SongMetadata{AddedBy: d.username},
	}}
	item.Normalize()
	d.store.addPending(item)
	if err := d.send(cmd); err != nil {
		d.store.dropPending(item.Song.SongID)
		return err
	}
	d.publish()
	return nil
}

func (d *dispatcher) vote(dir Direction) error {
	songID := d.store.nowPlayingID()
	if songID == "" {
		return ErrNothingPlaying
	}
	plan := d.votes.Plan(songID, dir)
	if err := d.issue(protocol.VoteSong{Action: plan.Action, SongID: songID}); err != nil {
		return err
	}
	d.votes.Commit(plan)
	d.publish()
	return nil
}

func (d *dispatcher) reorder(ids []string) error {
	cmd := protocol.ReorderQueue{NewOrder: ids}
	if err := d.authorize(cmd); err != nil {
		return err
	}
	undo := d.store.setLocalOrder(ids)
	if err := d.send(cmd); err != nil {
		undo()
		return err
	}
	d.publish()
	return nil
}
