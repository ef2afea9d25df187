// Package roomsync keeps a client's copy of a room consistent with the
// server. A Manager owns at most one Handle per room; each Handle owns one
// event channel, a dispatcher that applies inbound events in arrival order,
// and the room store those events mutate.
package roomsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/beatbus/room-sync/pkg/models"
	"github.com/beatbus/room-sync/pkg/protocol"
)

const defaultOutboundBuffer = 32

type Options struct {
	Transport Transport
	Hooks     Hooks
	// Backoff builds the reconnect policy for a handle. Returning
	// backoff.Stop from NextBackOff leaves the handle disconnected.
	Backoff        func() backoff.BackOff
	PendingTTL     time.Duration
	OutboundBuffer int
	Logger         *logrus.Entry
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

type Manager struct {
	opts Options

	mu      sync.Mutex
	handles map[string]*Handle
}

func NewManager(opts Options) *Manager {
	if opts.Backoff == nil {
		opts.Backoff = defaultBackoff
	}
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = defaultOutboundBuffer
	}
	if opts.Logger == nil {
		opts.Logger = logrus.WithField("component", "roomsync")
	}
	return &Manager{opts: opts, handles: make(map[string]*Handle)}
}

// Connect opens the channel for roomID as username. Any handle this manager
// already holds for roomID is closed, and its channel released, first. The
// returned handle lives until Disconnect, a terminal event, or ctx ends.
func (m *Manager) Connect(ctx context.Context, roomID, username, password string) (*Handle, error) {
	if m.opts.Transport == nil {
		return nil, ErrNoTransport
	}
	if roomID == "" || username == "" {
		return nil, ErrInvalidRoom
	}

	for {
		m.mu.Lock()
		prev := m.handles[roomID]
		if prev == nil {
			h := m.newHandle(ctx, roomID, username, password)
			m.handles[roomID] = h
			m.mu.Unlock()
			go h.run()
			return h, nil
		}
		m.mu.Unlock()

		prev.Close()
		select {
		case <-prev.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.release(prev)
	}
}

// Disconnect tears h down. Events still in flight for it are discarded.
func (m *Manager) Disconnect(h *Handle) {
	if h != nil {
		h.Close()
	}
}

// Handle returns the live handle for roomID, if any.
func (m *Manager) Handle(roomID string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[roomID]
	return h, ok
}

// Close disconnects every handle.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		all = append(all, h)
	}
	m.mu.Unlock()

	for _, h := range all {
		h.Close()
	}
}

func (m *Manager) release(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles[h.roomID] == h {
		delete(m.handles, h.roomID)
	}
}

func (m *Manager) newHandle(parent context.Context, roomID, username, password string) *Handle {
	ctx, cancel := context.WithCancel(parent)
	log := m.opts.Logger.WithFields(logrus.Fields{"room_id": roomID, "username": username})

	h := &Handle{
		roomID:   roomID,
		username: username,
		password: password,
		opts:     m.opts,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	h.release = func() { m.release(h) }
	h.store = newStore(m.opts.PendingTTL)
	h.votes = &VoteReconciler{}
	h.notes = newNotifier(m.opts.Hooks.OnNotice)
	h.life = newLifecycle(func(s Status, err error) {
		log.WithField("status", s).Info("room status changed")
		if m.opts.Hooks.OnStatus != nil {
			m.opts.Hooks.OnStatus(s, err)
		}
	})
	h.disp = &dispatcher{
		username:   username,
		store:      h.store,
		votes:      h.votes,
		life:       h.life,
		notes:      h.notes,
		hooks:      m.opts.Hooks,
		log:        log,
		send:       h.send,
		onTerminal: h.teardown,
	}
	return h
}

// Handle is one room membership.
type Handle struct {
	roomID   string
	username string
	password string
	opts     Options
	log      *logrus.Entry

	store *Store
	votes *VoteReconciler
	life  *Lifecycle
	notes *notifier
	disp  *dispatcher

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	release   func()

	mu   sync.Mutex
	conn Conn
	out  chan []byte
}

func (h *Handle) RoomID() string   { return h.roomID }
func (h *Handle) Username() string { return h.username }
func (h *Handle) Status() Status   { return h.life.Status() }

// Err is the reason for the current status, if any.
func (h *Handle) Err() error { return h.life.Err() }

// Done is closed once the connection loop has stopped for good.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Room returns a copy of the authoritative room state.
func (h *Handle) Room() *models.RoomState { return h.store.Room() }

func (h *Handle) View() View { return h.disp.view() }

// Close ends the membership and discards any event still in flight.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.disp.shutdown()
		h.life.transition(StatusClosed, nil)
		h.teardown()
	})
}

func (h *Handle) teardown() {
	h.disp.shutdown()
	h.cancel()
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	h.store.destroy()
	h.release()
}

func (h *Handle) run() {
	defer close(h.done)
	defer h.Close()

	b := backoff.WithContext(h.opts.Backoff(), h.ctx)
	b.Reset()
	for {
		h.life.transition(StatusConnecting, nil)
		gen := h.disp.advance()
		err := h.session(gen)

		if h.ctx.Err() != nil || h.life.Status().Terminal() {
			return
		}
		if errors.Is(err, ErrAuthFailed) {
			h.disp.fail(StatusAuthFailed, err)
			return
		}
		if h.life.Status() == StatusConnected {
			b.Reset()
		}

		h.log.WithError(err).Warn("room connection lost")
		h.life.transition(StatusDisconnected, err)
		h.notes.raise(keyDisconnected, "Connection lost, trying to reconnect")

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			h.log.Warn("giving up on reconnecting")
			<-h.ctx.Done()
			return
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-h.ctx.Done():
			timer.Stop()
			return
		}
	}
}

// session runs one connection until it fails or the handle ends.
func (h *Handle) session(gen uint64) error {
	conn, err := h.opts.Transport.Dial(h.ctx, h.roomID, h.username)
	if err != nil {
		return err
	}
	out, stop, err := h.attach(conn)
	if err != nil {
		return err
	}
	defer h.detach(conn, stop)
	unwatch := context.AfterFunc(h.ctx, func() { _ = conn.Close() })
	defer unwatch()

	join, err := protocol.EncodeCommand(protocol.JoinRoom{
		RoomID:       h.roomID,
		RoomPassword: h.password,
		Username:     h.username,
	})
	if err != nil {
		return err
	}
	out <- join
	go h.writePump(conn, out, stop)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read from room channel: %w", err)
		}
		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			h.log.WithError(err).Warn("dropping malformed event")
			continue
		}
		h.disp.deliver(gen, ev)
		if h.life.Status().Terminal() {
			return nil
		}
	}
}

func (h *Handle) attach(conn Conn) (chan []byte, chan struct{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		_ = conn.Close()
		return nil, nil, h.ctx.Err()
	}
	h.conn = conn
	h.out = make(chan []byte, h.opts.OutboundBuffer)
	return h.out, make(chan struct{}), nil
}

func (h *Handle) detach(conn Conn, stop chan struct{}) {
	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
		h.out = nil
	}
	h.mu.Unlock()
	close(stop)
	_ = conn.Close()
}

// writePump is the only writer of conn.
func (h *Handle) writePump(conn Conn, out <-chan []byte, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case msg := <-out:
			if err := conn.WriteMessage(msg); err != nil {
				h.log.WithError(err).Warn("failed to write to room channel")
				_ = conn.Close()
				return
			}
		}
	}
}

func (h *Handle) send(cmd protocol.Command) error {
	if h.life.Status() != StatusConnected {
		return ErrNotConnected
	}
	frame, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	h.mu.Lock()
	out := h.out
	h.mu.Unlock()
	if out == nil {
		return ErrNotConnected
	}
	select {
	case out <- frame:
		return nil
	default:
		return ErrOutboundFull
	}
}

// Issue authorizes and sends any command. The intent methods below are
// preferred since they also maintain local state.
func (h *Handle) Issue(cmd protocol.Command) error { return h.disp.issue(cmd) }

// AddSong proposes a song and shows it as pending until the server's queue
// update arrives.
func (h *Handle) AddSong(title, artist, album string) error {
	return h.disp.addSong(title, artist, album)
}

// Vote toggles the local user's vote on the now-playing song.
func (h *Handle) Vote(dir Direction) error { return h.disp.vote(dir) }

func (h *Handle) Skip() error { return h.disp.issue(protocol.SkipSong{}) }

// Reorder sends the new order of song ids; positions come back from the server.
func (h *Handle) Reorder(songIDs []string) error { return h.disp.reorder(songIDs) }

func (h *Handle) RemoveSong(songID string) error {
	return h.disp.issue(protocol.RemoveSong{SongID: songID})
}

func (h *Handle) RemoveUser(username string) error {
	return h.disp.issue(protocol.RemoveUser{UserID: username})
}

func (h *Handle) UpdateSettings(s models.RoomSettings) error {
	return h.disp.issue(protocol.UpdateRoomSettings{Settings: s})
}

func (h *Handle) SendMessage(text string) error {
	return h.disp.issue(protocol.Chat{Message: text, Username: h.username})
}
