package network

import (
	"net"
	"strconv"

	"github.com/roach88/lockstep/internal/future"
	"github.com/roach88/lockstep/internal/peer"
	"github.com/roach88/lockstep/internal/wire"
)

// Endpoint identifies a remote service.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// String returns "host:port".
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Peer is the coordinator's record of one remote service it is a client of:
// the connection, the buffer it feeds, and the batch delivered by the last
// release.
type Peer struct {
	endpoint Endpoint
	conn     source
	buffer   *future.Buffer
	batch    future.Batch
	handlers []func(wire.Message)
}

// Endpoint returns the remote endpoint.
func (p *Peer) Endpoint() Endpoint { return p.endpoint }

// State returns the connection state.
func (p *Peer) State() peer.State { return p.conn.State() }

// Horizon returns the number of closed batches buffered for this peer.
func (p *Peer) Horizon() int { return p.buffer.Horizon() }

// PeekMarker returns the marker closing the i-th buffered batch.
func (p *Peer) PeekMarker(i int) (*wire.Sync, error) { return p.buffer.PeekMarker(i) }

// Batch returns the batch delivered by the last Synchronize, marker
// included, or nil if that call did not release a tick.
func (p *Peer) Batch() future.Batch { return p.batch }

// Messages returns the application messages delivered by the last
// Synchronize, without the marker.
func (p *Peer) Messages() []wire.Message { return p.batch.Messages() }

// Subscribe registers fn for every delivered message of type T, the marker
// included when T is *wire.Sync. Handlers run during Synchronize, in batch
// order, after every peer has been advanced.
//
//	network.Subscribe(p, func(t *wire.Text) { log.Println(t.Body) })
func Subscribe[T wire.Message](p *Peer, fn func(T)) {
	p.handlers = append(p.handlers, func(m wire.Message) {
		if v, ok := m.(T); ok {
			fn(v)
		}
	})
}

// source is the part of peer.Conn a Peer uses.
type source interface {
	Pull() (wire.Message, bool)
	Buffered() int
	State() peer.State
	Close() error
}

var _ source = (*peer.Conn)(nil)

// drain moves the messages the connection had ready when the drain started
// into the buffer. Messages decoded meanwhile wait for the next frame, so a
// fast sender cannot hold the frame loop here.
func (p *Peer) drain() int {
	limit := p.conn.Buffered()
	n := 0
	for {
		m, ok := p.conn.Pull()
		if !ok {
			return n
		}
		p.buffer.Push(m)
		n++

		if limit == 0 {
			// The stream opened during this Pull.
			limit = n + p.conn.Buffered()
		}
		if n >= limit {
			return n
		}
	}
}

// ready reports whether the oldest buffered batch closes tick id.
func (p *Peer) ready(id uint64) bool {
	if p.buffer.Horizon() == 0 {
		return false
	}
	m, err := p.buffer.PeekMarker(0)
	if err != nil || m == nil {
		return false
	}
	return m.Active() && m.ID() == id
}

func (p *Peer) dispatch() {
	if len(p.handlers) == 0 {
		return
	}
	for _, m := range p.batch {
		for _, h := range p.handlers {
			h(m)
		}
	}
}
