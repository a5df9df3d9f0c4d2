package network

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/lockstep/internal/future"
	"github.com/roach88/lockstep/internal/peer"
	"github.com/roach88/lockstep/internal/service"
	"github.com/roach88/lockstep/internal/wire"
)

// Coordinator decides once per frame whether the group may advance one tick.
//
// Thread-safety: every method must be called from the frame loop goroutine.
// SyncID may be read from anywhere.
type Coordinator struct {
	clock            *Clock
	minHorizon       int
	preferredHorizon int // negative: follow minHorizon
	active           bool

	services     map[string]*service.Service
	serviceOrder []string

	peers   []*Peer
	byEnd   map[Endpoint]*Peer
	filling map[Endpoint]struct{}
	waiting []Endpoint
	stalled bool

	listenHost  string
	registry    *wire.Registry
	recorder    Recorder
	sessions    SessionGenerator
	session     string
	peerOpts    []peer.Option
	serviceOpts []service.Option
	logger      *slog.Logger
}

// New creates a coordinator at tick 0 with no services and no peers.
func New(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		clock:            NewClock(),
		minHorizon:       DefaultMinHorizon,
		preferredHorizon: -1,
		services:         make(map[string]*service.Service),
		byEnd:            make(map[Endpoint]*Peer),
		filling:          make(map[Endpoint]struct{}),
		registry:         wire.NewRegistry(),
		sessions:         UUIDv7Generator{},
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = c.sessions.Generate()
	c.logger = c.logger.With("session", c.session)
	return c
}

// Session returns the session id.
func (c *Coordinator) Session() string { return c.session }

// Registry returns the registry used to decode peer streams.
func (c *Coordinator) Registry() *wire.Registry { return c.registry }

// SyncID returns the id of the next tick to release.
func (c *Coordinator) SyncID() uint64 { return c.clock.Current() }

// Active reports whether the last Synchronize released a tick.
func (c *Coordinator) Active() bool { return c.active }

// MinHorizon returns the number of batches every peer must buffer before a
// tick is released.
func (c *Coordinator) MinHorizon() int { return c.minHorizon }

// SetMinHorizon changes the minimum horizon. It applies to the next
// Synchronize, and to the priming of clients accepted from then on.
func (c *Coordinator) SetMinHorizon(n int) error {
	if n < 1 {
		return newInvalidHorizonError(n)
	}
	c.minHorizon = n
	return nil
}

// Connect returns the peer for host:port, creating it and starting its
// first connection attempt if it does not exist yet.
func (c *Coordinator) Connect(host string, port int) *Peer {
	ep := Endpoint{Host: host, Port: port}
	if p, ok := c.byEnd[ep]; ok {
		return p
	}

	preferred := c.preferredHorizon
	if preferred < 0 {
		preferred = c.minHorizon
	}

	opts := append([]peer.Option{
		peer.WithLogger(c.logger),
		peer.WithRegistry(c.registry),
	}, c.peerOpts...)

	p := &Peer{
		endpoint: ep,
		conn:     peer.New(host, port, opts...),
		buffer:   future.New(preferred),
	}
	c.peers = append(c.peers, p)
	c.byEnd[ep] = p

	c.logger.Info("peer added", "peer", ep.String(), "preferred_horizon", preferred)
	return p
}

// Drop closes and forgets the peer for host:port. Reports whether it
// existed.
func (c *Coordinator) Drop(host string, port int) bool {
	ep := Endpoint{Host: host, Port: port}
	p, ok := c.byEnd[ep]
	if !ok {
		return false
	}

	_ = p.conn.Close()
	delete(c.byEnd, ep)
	delete(c.filling, ep)
	for i, q := range c.peers {
		if q == p {
			c.peers = append(c.peers[:i], c.peers[i+1:]...)
			break
		}
	}

	c.logger.Info("peer dropped", "peer", ep.String())
	return true
}

// PeerCount returns the number of peers.
func (c *Coordinator) PeerCount() int { return len(c.peers) }

// Peer returns the i-th peer, in Connect order.
func (c *Coordinator) Peer(i int) (*Peer, error) {
	if i < 0 || i >= len(c.peers) {
		return nil, newPeerIndexError(i, len(c.peers))
	}
	return c.peers[i], nil
}

// Peers returns every peer, in Connect order.
func (c *Coordinator) Peers() []*Peer {
	out := make([]*Peer, len(c.peers))
	copy(out, c.peers)
	return out
}

// Horizon returns the smallest horizon across peers, or 0 without peers.
func (c *Coordinator) Horizon() int {
	if len(c.peers) == 0 {
		return 0
	}
	h := c.peers[0].buffer.Horizon()
	for _, p := range c.peers[1:] {
		h = min(h, p.buffer.Horizon())
	}
	return h
}

// OpenService starts listening for clients on port under name. Opening a
// name that is already open does nothing.
func (c *Coordinator) OpenService(name string, port int) error {
	if _, ok := c.services[name]; ok {
		return nil
	}

	var svc *service.Service
	opts := append([]service.Option{
		service.WithLogger(c.logger),
		service.WithNewPeerHandler(func(cl *service.Client) {
			c.onNewPeer(svc, cl)
		}),
	}, c.serviceOpts...)

	svc, err := service.Listen(name, c.listenHost, port, opts...)
	if err != nil {
		return err
	}

	c.services[name] = svc
	c.serviceOrder = append(c.serviceOrder, name)
	return nil
}

// Service returns the service opened under name.
func (c *Coordinator) Service(name string) (*service.Service, bool) {
	s, ok := c.services[name]
	return s, ok
}

// Send stamps m with the current tick and broadcasts it on the named
// service.
func (c *Coordinator) Send(name string, m wire.Message) error {
	s, ok := c.services[name]
	if !ok {
		return newUnknownServiceError(name)
	}
	m.SetDate(c.clock.Current())
	return s.Broadcast(m)
}

// Synchronize runs the frame's network step and reports whether a tick was
// released. On release every peer's Batch holds its batch for tick SyncID
// and subscribers have been called.
func (c *Coordinator) Synchronize(ctx context.Context) bool {
	for _, p := range c.peers {
		p.batch = nil
	}

	for _, name := range c.serviceOrder {
		c.services[name].AcceptPending()
	}

	for _, p := range c.peers {
		p.drain()
	}

	c.active = c.prepare()
	if !c.active {
		c.reportWaiting()
		return false
	}

	c.release(ctx)
	return true
}

// prepare updates the filling set and reports whether the tick is
// releasable.
func (c *Coordinator) prepare() bool {
	id := c.clock.Current()
	c.waiting = c.waiting[:0]

	for _, p := range c.peers {
		h := p.buffer.Horizon()
		if h == 0 {
			c.filling[p.endpoint] = struct{}{}
		} else if h >= c.minHorizon {
			delete(c.filling, p.endpoint)
		}

		_, filling := c.filling[p.endpoint]
		if filling || !p.ready(id) {
			c.waiting = append(c.waiting, p.endpoint)
		}
	}

	return len(c.waiting) == 0
}

func (c *Coordinator) release(ctx context.Context) {
	tick := Tick{Session: c.session, ID: c.clock.Current()}

	for _, p := range c.peers {
		// prepare checked every horizon
		batch, _ := p.buffer.Next()
		p.batch = batch
		tick.Batches = append(tick.Batches, PeerBatch{Peer: p.endpoint, Batch: batch})
	}

	if c.stalled {
		c.stalled = false
		c.logger.Info("peers ready", "sync_id", tick.ID)
	}
	c.logger.Debug("tick released", "tick_id", tick.ID, "peers", len(c.peers))

	if c.recorder != nil {
		if err := c.recorder.RecordTick(ctx, tick); err != nil {
			c.logger.Error("record tick failed", "tick_id", tick.ID, "error", err)
		}
	}

	for _, p := range c.peers {
		p.dispatch()
	}
}

func (c *Coordinator) reportWaiting() {
	if c.stalled {
		return
	}
	c.stalled = true

	names := make([]string, len(c.waiting))
	for i, ep := range c.waiting {
		names[i] = ep.String()
	}
	c.logger.Warn("waiting for peer", "sync_id", c.clock.Current(), "peers", names)
}

// Waiting returns the peers that blocked the last Synchronize, in peer
// order. It is empty after a release.
func (c *Coordinator) Waiting() []Endpoint {
	out := make([]Endpoint, len(c.waiting))
	copy(out, c.waiting)
	return out
}

// BroadcastTick announces tick SyncID+MinHorizon on every service and
// advances the clock, if the last Synchronize released a tick. It does
// nothing otherwise.
func (c *Coordinator) BroadcastTick() {
	if !c.active {
		return
	}

	id := c.clock.Current()
	marker := wire.NewSync(id+uint64(c.minHorizon), true)
	marker.SetDate(id)

	for _, name := range c.serviceOrder {
		if err := c.services[name].Broadcast(marker); err != nil {
			c.logger.Warn("tick broadcast failed", "service", name, "error", err)
		}
	}

	c.clock.Advance()
}

// onNewPeer primes a freshly accepted client with MinHorizon active markers
// starting at SyncID.
func (c *Coordinator) onNewPeer(s *service.Service, cl *service.Client) {
	id := c.clock.Current()
	for i := 0; i < c.minHorizon; i++ {
		marker := wire.NewSync(id+uint64(i), true)
		marker.SetDate(id)
		if err := s.SendTo(cl, marker); err != nil {
			c.logger.Warn("priming failed", "service", s.Name(), "client", cl.ID(), "error", err)
			return
		}
	}
	c.logger.Debug("client primed", "service", s.Name(), "client", cl.ID(), "sync_id", id, "markers", c.minHorizon)
}

// Close closes every peer and service.
func (c *Coordinator) Close() error {
	var errs []error
	for _, p := range c.peers {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range c.serviceOrder {
		if err := c.services[name].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.peers = nil
	c.byEnd = make(map[Endpoint]*Peer)
	c.filling = make(map[Endpoint]struct{})
	c.services = make(map[string]*service.Service)
	c.serviceOrder = nil

	return errors.Join(errs...)
}
