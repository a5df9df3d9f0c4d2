package network

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/testutil"
	"github.com/roach88/lockstep/internal/wire"
)

func newLocal(t *testing.T, session string, opts ...CoordinatorOption) *Coordinator {
	t.Helper()
	base := []CoordinatorOption{
		WithLogger(quietLogger()),
		WithListenHost("127.0.0.1"),
		WithSessionGenerator(NewFixedGenerator(session)),
	}
	c := New(append(base, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func servicePort(t *testing.T, c *Coordinator, name string) int {
	t.Helper()
	s, ok := c.Service(name)
	require.True(t, ok)
	return s.Port()
}

func TestCoordinator_NewPeerIsPrimed(t *testing.T) {
	const mh = 3
	host := newLocal(t, "host", WithMinHorizon(mh))
	host.clock = NewClockAt(7)
	require.NoError(t, host.OpenService("game", 0))

	client := newLocal(t, "client", WithMinHorizon(mh))
	p := client.Connect("127.0.0.1", servicePort(t, host, "game"))

	ctx := context.Background()
	testutil.WaitFor(t, 2*time.Second, func() bool {
		host.Synchronize(ctx)
		p.drain()
		return p.Horizon() >= mh
	})

	assert.Equal(t, mh, p.Horizon())
	for i := 0; i < mh; i++ {
		m, err := p.PeekMarker(i)
		require.NoError(t, err)
		assert.True(t, m.Active())
		assert.Equal(t, uint64(7+i), m.ID())
	}
}

func TestCoordinator_OpenServiceIdempotent(t *testing.T) {
	c := newLocal(t, "host")
	require.NoError(t, c.OpenService("game", 0))
	port := servicePort(t, c, "game")

	require.NoError(t, c.OpenService("game", 0))
	assert.Equal(t, port, servicePort(t, c, "game"))
	assert.Len(t, c.Status().Services, 1)
}

func TestCoordinator_SendStampsCurrentTick(t *testing.T) {
	host := newLocal(t, "host")
	host.clock = NewClockAt(12)
	require.NoError(t, host.OpenService("game", 0))

	client := newLocal(t, "client")
	p := client.Connect("127.0.0.1", servicePort(t, host, "game"))

	ctx := context.Background()
	testutil.WaitFor(t, 2*time.Second, func() bool {
		host.Synchronize(ctx)
		return host.Status().Services[0].Clients == 1
	})

	require.NoError(t, host.Send("game", wire.NewText("hello")))
	host.Synchronize(ctx)
	host.BroadcastTick()

	testutil.WaitFor(t, 2*time.Second, func() bool {
		p.drain()
		return p.Horizon() >= 2
	})
	_, err := p.buffer.Next() // priming marker
	require.NoError(t, err)
	got, err := p.buffer.Next()
	require.NoError(t, err)

	assert.Equal(t, []string{"hello", "sync(13)"}, testutil.Describe(got))
	assert.Equal(t, uint64(12), got[0].Date())
	assert.Equal(t, uint64(12), got[1].Date())
	assert.Equal(t, uint64(13), host.SyncID())
}

// TestCoordinator_TwoNodeLockstep runs two coordinators that host each other
// and checks that both advance tick by tick, consuming each other's messages
// MinHorizon ticks after they were sent.
func TestCoordinator_TwoNodeLockstep(t *testing.T) {
	for _, mh := range []int{1, 2} {
		t.Run(fmt.Sprintf("min_horizon=%d", mh), func(t *testing.T) {
			const ticks = 10
			ctx := context.Background()

			a := newLocal(t, "a", WithMinHorizon(mh))
			b := newLocal(t, "b", WithMinHorizon(mh))
			require.NoError(t, a.OpenService("game", 0))
			require.NoError(t, b.OpenService("game", 0))

			pa := a.Connect("127.0.0.1", servicePort(t, b, "game"))
			pb := b.Connect("127.0.0.1", servicePort(t, a, "game"))

			type delivery struct {
				tick uint64
				body string
				date uint64
			}
			var gotA, gotB []delivery
			Subscribe(pa, func(m *wire.Text) {
				gotA = append(gotA, delivery{a.SyncID(), m.Body, m.Date()})
			})
			Subscribe(pb, func(m *wire.Text) {
				gotB = append(gotB, delivery{b.SyncID(), m.Body, m.Date()})
			})

			frame := func(name string, c *Coordinator) {
				if c.Synchronize(ctx) && c.SyncID() < ticks {
					require.NoError(t, c.Send("game", wire.NewText(fmt.Sprintf("%s@%d", name, c.SyncID()))))
				}
				c.BroadcastTick()
			}

			testutil.WaitFor(t, 5*time.Second, func() bool {
				frame("a", a)
				frame("b", b)
				return a.SyncID() >= ticks+uint64(mh) && b.SyncID() >= ticks+uint64(mh)
			})

			for _, got := range [][]delivery{gotA, gotB} {
				require.Len(t, got, ticks)
				for i, d := range got {
					assert.Equal(t, uint64(i), d.date)
					assert.Equal(t, d.date+uint64(mh), d.tick, "consumed min_horizon ticks after sending")
				}
			}
			assert.Equal(t, "b@0", gotA[0].body)
			assert.Equal(t, "a@0", gotB[0].body)

			// Neither side ever gets ahead by more than the pipeline allows.
			diff := int64(a.SyncID()) - int64(b.SyncID())
			assert.LessOrEqual(t, diff, int64(mh))
			assert.GreaterOrEqual(t, diff, -int64(mh))
		})
	}
}

func TestCoordinator_PeerRestartStallsGroup(t *testing.T) {
	ctx := context.Background()
	host := newLocal(t, "host")
	require.NoError(t, host.OpenService("game", 0))
	port := servicePort(t, host, "game")

	client := newLocal(t, "client")
	p := client.Connect("127.0.0.1", port)

	// The host has no peers of its own; it only accepts and primes.
	testutil.WaitFor(t, 2*time.Second, func() bool {
		host.Synchronize(ctx)
		return client.Synchronize(ctx)
	})
	assert.Equal(t, uint64(0), p.Batch().Marker().ID())
	client.BroadcastTick()

	// The host goes away: the client drains what it has, then waits.
	require.NoError(t, host.Close())
	testutil.WaitFor(t, 2*time.Second, func() bool {
		released := client.Synchronize(ctx)
		client.BroadcastTick()
		return !released && p.Horizon() == 0
	})

	assert.False(t, client.Synchronize(ctx))
	assert.Equal(t, []Endpoint{p.Endpoint()}, client.Waiting())
}
