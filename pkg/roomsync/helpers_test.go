package roomsync

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/beatbus/room-sync/pkg/models"
	"github.com/beatbus/room-sync/pkg/protocol"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func song(id, addedBy string) models.Song {
	return models.Song{
		SongID:   id,
		Stats:    models.SongStats{Title: "Song " + id, Artist: "Artist " + id},
		Metadata: models.SongMetadata{AddedBy: addedBy},
	}
}

// testRoom is hosted by "host" with five users, queue [A, B] and nothing playing.
func testRoom() models.RoomState {
	return models.RoomState{
		RoomID:        "room-1",
		Settings:      models.RoomSettings{RoomName: "Friday", HostUsername: "host", MaxUsers: 10, Lifetime: 60},
		NumberOfUsers: 5,
		Queue: []models.QueueItem{
			{Song: song("A", "guest"), Position: 1},
			{Song: song("B", "host"), Position: 2},
		},
	}
}

type recorder struct {
	mu       sync.Mutex
	cmds     []protocol.Command
	notices  []Notice
	statuses []Status
	chats    []string
	states   int
}

func (r *recorder) send(cmd protocol.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *recorder) notice(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) status(s Status, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) commands() []protocol.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Command(nil), r.cmds...)
}

// errorNotices returns the error-level notices whose key starts with prefix.
func (r *recorder) errorNotices(prefix string) []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notice
	for _, n := range r.notices {
		if n.Level == NoticeError && strings.HasPrefix(n.Key, prefix) {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnStatus: r.status,
		OnNotice: r.notice,
		OnState: func(View) {
			r.mu.Lock()
			r.states++
			r.mu.Unlock()
		},
		OnChat: func(user, msg string) {
			r.mu.Lock()
			r.chats = append(r.chats, user+": "+msg)
			r.mu.Unlock()
		},
	}
}

// newTestDispatcher returns a dispatcher on generation 1 whose outbound
// commands are recorded instead of sent.
func newTestDispatcher(username string) (*dispatcher, *recorder) {
	rec := &recorder{}
	hooks := rec.hooks()
	d := &dispatcher{
		username: username,
		store:    newStore(0),
		votes:    &VoteReconciler{},
		life:     newLifecycle(hooks.OnStatus),
		notes:    newNotifier(hooks.OnNotice),
		hooks:    hooks,
		log:      testLogger(),
		send:     rec.send,
	}
	d.advance()
	return d, rec
}

// fakeConn is an in-memory channel. Frames pushed to in are read by the
// handle; frames the handle writes appear on sent.
type fakeConn struct {
	in     chan []byte
	sent   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		sent:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, io.EOF
	default:
	}
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	case c.sent <- data:
		return nil
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) push(t *testing.T, ev protocol.Event) {
	t.Helper()
	data, err := protocol.EncodeEvent(ev)
	require.NoError(t, err)
	c.in <- data
}

// next returns the next command the handle wrote.
func (c *fakeConn) next(t *testing.T) protocol.Command {
	t.Helper()
	select {
	case data := <-c.sent:
		cmd, err := protocol.DecodeCommand(data)
		require.NoError(t, err)
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no command written")
		return nil
	}
}

type fakeTransport struct {
	mu     sync.Mutex
	dials  int
	err    error
	dialed chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{dialed: make(chan *fakeConn, 8)}
}

func (t *fakeTransport) Dial(ctx context.Context, roomID, username string) (Conn, error) {
	t.mu.Lock()
	t.dials++
	err := t.err
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	c := newFakeConn()
	t.dialed <- c
	return c, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) nextConn(tb testing.TB) *fakeConn {
	tb.Helper()
	select {
	case c := <-t.dialed:
		return c
	case <-time.After(2 * time.Second):
		tb.Fatal("transport was not dialed")
		return nil
	}
}
