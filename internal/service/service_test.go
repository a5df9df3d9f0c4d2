package service

import (
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/testutil"
	"github.com/roach88/lockstep/internal/wire"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func dial(t *testing.T, s *Service) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(s.Port())))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readN decodes n messages from conn.
func readN(t *testing.T, conn net.Conn, n int) []wire.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	dec := wire.NewDecoder(conn, wire.NewRegistry(), nil)

	out := make([]wire.Message, 0, n)
	for len(out) < n {
		m, err := dec.Decode()
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func adopt(t *testing.T, s *Service, want int) {
	t.Helper()
	total := 0
	testutil.WaitFor(t, 2*time.Second, func() bool {
		total += s.AcceptPending()
		return total >= want
	}, "expected %d clients", want)
}

func TestService_AcceptPendingNonBlocking(t *testing.T) {
	s := Serve("game", testutil.Listen(t), quiet())
	defer s.Close()

	start := time.Now()
	assert.Equal(t, 0, s.AcceptPending())
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, "game", s.Name())
}

func TestService_NewPeerHandler(t *testing.T) {
	var seen []*Client
	var s *Service
	s = Serve("game", testutil.Listen(t), quiet(), WithNewPeerHandler(func(c *Client) {
		seen = append(seen, c)
		require.NoError(t, s.SendTo(c, wire.NewSync(0, true)))
	}))
	defer s.Close()

	conn := dial(t, s)
	adopt(t, s, 1)

	require.Len(t, seen, 1)
	assert.Equal(t, uint64(1), seen[0].ID())
	assert.True(t, seen[0].Alive())

	got := readN(t, conn, 1)
	assert.Equal(t, []string{"sync(0)"}, testutil.Describe(got))
}

func TestService_BroadcastReachesEveryClientInOrder(t *testing.T) {
	s := Serve("game", testutil.Listen(t), quiet())
	defer s.Close()

	a := dial(t, s)
	b := dial(t, s)
	adopt(t, s, 2)
	assert.Equal(t, 2, s.ClientCount())

	require.NoError(t, s.Broadcast(wire.NewText("one")))
	require.NoError(t, s.Broadcast(wire.NewText("two")))
	require.NoError(t, s.Broadcast(wire.NewSync(3, true)))

	want := []string{"one", "two", "sync(3)"}
	assert.Equal(t, want, testutil.Describe(readN(t, a, 3)))
	assert.Equal(t, want, testutil.Describe(readN(t, b, 3)))
}

func TestService_SendToSingleClient(t *testing.T) {
	var first *Client
	s := Serve("game", testutil.Listen(t), quiet(), WithNewPeerHandler(func(c *Client) {
		if first == nil {
			first = c
		}
	}))
	defer s.Close()

	a := dial(t, s)
	adopt(t, s, 1)
	b := dial(t, s)
	adopt(t, s, 1)

	require.NoError(t, s.SendTo(first, wire.NewText("only a")))
	require.NoError(t, s.Broadcast(wire.NewText("both")))

	assert.Equal(t, []string{"only a", "both"}, testutil.Describe(readN(t, a, 2)))
	assert.Equal(t, []string{"both"}, testutil.Describe(readN(t, b, 1)))
}

func TestService_DeadClientDoesNotBlockOthers(t *testing.T) {
	s := Serve("game", testutil.Listen(t), quiet())
	defer s.Close()

	a := dial(t, s)
	b := dial(t, s)
	adopt(t, s, 2)

	require.NoError(t, a.Close())

	testutil.WaitFor(t, 2*time.Second, func() bool {
		require.NoError(t, s.Broadcast(wire.NewText("tick")))
		return len(s.Clients()) == 1
	})

	assert.Equal(t, 1, s.ClientCount())
	got := readN(t, b, 1)
	assert.Equal(t, []string{"tick"}, testutil.Describe(got))
}

func TestService_SendToGoneClient(t *testing.T) {
	var client *Client
	s := Serve("game", testutil.Listen(t), quiet(), WithNewPeerHandler(func(c *Client) { client = c }))
	defer s.Close()

	conn := dial(t, s)
	adopt(t, s, 1)
	require.NoError(t, conn.Close())

	testutil.WaitFor(t, 2*time.Second, func() bool { return !client.Alive() })
	assert.ErrorIs(t, s.SendTo(client, wire.NewText("late")), ErrClientGone)
}

func TestService_BroadcastRejectsUnencodableMessage(t *testing.T) {
	s := Serve("game", testutil.Listen(t), quiet())
	defer s.Close()

	err := s.Broadcast(wire.NewText("fine"))
	require.NoError(t, err, "no clients is not an error")

	err = s.Broadcast(&badMessage{})
	require.Error(t, err)
	assert.True(t, wire.IsProtocolError(err))
}

func TestService_CloseFlushesQueuedRecords(t *testing.T) {
	s := Serve("game", testutil.Listen(t), quiet())

	conn := dial(t, s)
	adopt(t, s, 1)

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Broadcast(wire.NewSync(uint64(i), true)))
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	got := readN(t, conn, 50)
	assert.Equal(t, "sync(49)", testutil.Describe(got)[49])

	_, err := wire.NewDecoder(conn, wire.NewRegistry(), nil).Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestListen_PicksFreePort(t *testing.T) {
	s, err := Listen("game", "127.0.0.1", 0, quiet())
	require.NoError(t, err)
	defer s.Close()

	assert.NotZero(t, s.Port())
	assert.Equal(t, "127.0.0.1", s.Addr().(*net.TCPAddr).IP.String())
}

func TestListen_PortInUse(t *testing.T) {
	l := testutil.Listen(t)
	_, err := Listen("game", "127.0.0.1", testutil.Port(l), quiet())
	assert.Error(t, err)
}

type badMessage struct{ wire.Header }

func (badMessage) Name() string                   { return "bad name" }
func (badMessage) MarshalFields() (string, error) { return "", nil }
func (badMessage) UnmarshalFields(string) error   { return nil }

// A client that never reads fills its socket buffers. With the write
// timeout disabled the writer would block forever; Close must still return
// once the grace period has passed.
func TestService_CloseBoundedByGrace(t *testing.T) {
	s := Serve("game", testutil.Listen(t), quiet(),
		WithWriteTimeout(0),
		WithCloseGrace(100*time.Millisecond),
	)

	_ = dial(t, s)
	adopt(t, s, 1)
	cl := s.Clients()[0]

	body := strings.Repeat("x", 64<<10)
	for i := 0; i < 200; i++ {
		require.NoError(t, s.Broadcast(wire.NewText(body)))
	}

	done := make(chan error, 1)
	go func() { done <- s.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked on a client that stopped reading")
	}
	assert.False(t, cl.Alive())
}

func TestClient_DeadlineCappedByClose(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := newClient(1, server, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.WithinDuration(t, time.Now().Add(time.Hour), c.deadline(), time.Minute)

	c.closeWithin(50 * time.Millisecond)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), c.deadline(), 40*time.Millisecond)

	off := newClient(2, server, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.True(t, off.deadline().IsZero())
}
