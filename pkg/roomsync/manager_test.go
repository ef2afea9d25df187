package roomsync

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatbus/room-sync/pkg/protocol"
)

const waitFor = 2 * time.Second

func newTestManager(tr *fakeTransport, rec *recorder) *Manager {
	return NewManager(Options{
		Transport: tr,
		Hooks:     rec.hooks(),
		Backoff:   func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) },
		Logger:    testLogger(),
	})
}

// joinRoom connects as username and answers the join with a snapshot.
func joinRoom(t *testing.T, m *Manager, tr *fakeTransport, username string) (*Handle, *fakeConn) {
	t.Helper()
	h, err := m.Connect(context.Background(), "room-1", username, "secret")
	require.NoError(t, err)
	conn := tr.nextConn(t)

	join := conn.next(t)
	assert.Equal(t, protocol.JoinRoom{RoomID: "room-1", RoomPassword: "secret", Username: username}, join)

	conn.push(t, protocol.RoomStateUpdate{State: testRoom()})
	require.Eventually(t, func() bool { return h.Status() == StatusConnected }, waitFor, 5*time.Millisecond)
	return h, conn
}

func TestConnect_JoinsAndAppliesEvents(t *testing.T) {
	tr, rec := newFakeTransport(), &recorder{}
	m := newTestManager(tr, rec)
	defer m.Close()

	h, conn := joinRoom(t, m, tr, "host")

	conn.push(t, protocol.UserJoined{Username: "guest"})
	require.Eventually(t, func() bool { return h.Room().NumberOfUsers == 6 }, waitFor, 5*time.Millisecond)
	assert.True(t, h.View().IsHost)

	require.NoError(t, h.Skip())
	assert.Equal(t, protocol.SkipSong{}, conn.next(t))
}

func TestConnect_RequiresRoomAndUser(t *testing.T) {
	m := newTestManager(newFakeTransport(), &recorder{})
	_, err := m.Connect(context.Background(), "", "me", "")
	assert.ErrorIs(t, err, ErrInvalidRoom)

	_, err = NewManager(Options{}).Connect(context.Background(), "r", "me", "")
	assert.ErrorIs(t, err, ErrNoTransport)
}

func TestConnect_ClosesPreviousHandleForRoom(t *testing.T) {
	tr, rec := newFakeTransport(), &recorder{}
	m := newTestManager(tr, rec)
	defer m.Close()

	first, firstConn := joinRoom(t, m, tr, "guest")
	second, _ := joinRoom(t, m, tr, "guest")

	assert.Equal(t, StatusClosed, first.Status())
	assert.True(t, firstConn.isClosed())
	assert.Nil(t, first.Room())

	live, ok := m.Handle("room-1")
	require.True(t, ok)
	assert.Same(t, second, live)
}

func TestDisconnect_LateEventsAreDiscarded(t *testing.T) {
	tr, rec := newFakeTransport(), &recorder{}
	m := newTestManager(tr, rec)

	h, conn := joinRoom(t, m, tr, "guest")
	gen := h.disp.gen.Load()

	m.Disconnect(h)
	<-h.Done()

	assert.Equal(t, StatusClosed, h.Status())
	assert.True(t, conn.isClosed())
	assert.False(t, h.disp.deliver(gen, protocol.UserJoined{Username: "late"}))
	assert.Nil(t, h.Room())
	assert.ErrorIs(t, h.SendMessage("hello?"), ErrClosed)

	_, ok := m.Handle("room-1")
	assert.False(t, ok)
}

func TestConnect_AuthFailureIsNotRetried(t *testing.T) {
	tr, rec := newFakeTransport(), &recorder{}
	m := newTestManager(tr, rec)
	defer m.Close()

	h, err := m.Connect(context.Background(), "room-1", "guest", "wrong")
	require.NoError(t, err)
	conn := tr.nextConn(t)
	conn.next(t)

	conn.push(t, protocol.Error{Code: protocol.CodeAuthFailed, Message: "invalid room password"})

	select {
	case <-h.Done():
	case <-time.After(waitFor):
		t.Fatal("handle kept running after auth failure")
	}
	assert.Equal(t, StatusAuthFailed, h.Status())
	assert.ErrorIs(t, h.Err(), ErrAuthFailed)
	assert.Equal(t, 1, tr.dialCount())
	assert.Len(t, rec.errorNotices(keyAuthFailed), 1)
}

func TestConnect_DialRejectedIsTerminal(t *testing.T) {
	tr, rec := newFakeTransport(), &recorder{}
	tr.err = ErrAuthFailed
	m := newTestManager(tr, rec)
	defer m.Close()

	h, err := m.Connect(context.Background(), "room-1", "guest", "")
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(waitFor):
		t.Fatal("handle kept running after auth failure")
	}
	assert.Equal(t, StatusAuthFailed, h.Status())
	assert.Equal(t, 1, tr.dialCount())
}

func TestConnect_ReconnectsAndRejoins(t *testing.T) {
	tr, rec := newFakeTransport(), &recorder{}
	m := newTestManager(tr, rec)
	defer m.Close()

	h, conn := joinRoom(t, m, tr, "guest")

	// the server drops the channel
	conn.Close()
	next := tr.nextConn(t)
	assert.Equal(t, protocol.JoinRoom{RoomID: "room-1", RoomPassword: "secret", Username: "guest"}, next.next(t))
	assert.NotEqual(t, StatusConnected, h.Status())
	assert.ErrorIs(t, h.SendMessage("anyone?"), ErrNotConnected)

	next.push(t, protocol.RoomStateUpdate{State: testRoom()})
	require.Eventually(t, func() bool { return h.Status() == StatusConnected }, waitFor, 5*time.Millisecond)

	rec.mu.Lock()
	statuses := append([]Status(nil), rec.statuses...)
	rec.mu.Unlock()
	assert.Equal(t, []Status{StatusConnected, StatusDisconnected, StatusConnecting, StatusConnected}, statuses)
	assert.Len(t, rec.errorNotices(keyDisconnected), 1)
}

func TestConnect_RoomDeletedStopsReconnecting(t *testing.T) {
	tr, rec := newFakeTransport(), &recorder{}
	m := newTestManager(tr, rec)
	defer m.Close()

	h, conn := joinRoom(t, m, tr, "guest")
	conn.push(t, protocol.RoomDeleted{})

	select {
	case <-h.Done():
	case <-time.After(waitFor):
		t.Fatal("handle kept running after room deletion")
	}
	assert.Equal(t, StatusRoomGone, h.Status())
	assert.Nil(t, h.Room())
	assert.Equal(t, 1, tr.dialCount())
	assert.True(t, conn.isClosed())
}

func TestConnect_ContextCancelClosesHandle(t *testing.T) {
	tr, rec := newFakeTransport(), &recorder{}
	m := newTestManager(tr, rec)

	ctx, cancel := context.WithCancel(context.Background())
	h, err := m.Connect(ctx, "room-1", "guest", "")
	require.NoError(t, err)
	tr.nextConn(t)

	cancel()
	select {
	case <-h.Done():
	case <-time.After(waitFor):
		t.Fatal("handle ignored context cancellation")
	}
	assert.Equal(t, StatusClosed, h.Status())
}
