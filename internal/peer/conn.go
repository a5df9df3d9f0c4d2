package peer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/lockstep/internal/queue"
	"github.com/roach88/lockstep/internal/wire"
)

// dialResult is written exactly once by a dial worker.
type dialResult struct {
	conn net.Conn
	err  error
}

// stream is one open TCP stream and the reader goroutine decoding it.
type stream struct {
	conn  net.Conn
	inbox *queue.FIFO[wire.Message]
	done  chan struct{}
	err   error // written before done is closed
}

// Conn is the connection to one remote (host, port).
//
// Pull and Close must be called from a single goroutine, the coordinator's.
// State may be read from anywhere.
type Conn struct {
	host    string
	port    int
	address string

	dialer      Dialer
	dialTimeout time.Duration
	registry    *wire.Registry
	logger      *slog.Logger
	backoffMin  time.Duration
	backoffMax  time.Duration
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32

	// mu orders a dial worker's handoff against Close.
	mu     sync.Mutex
	closed bool

	// Coordinator goroutine only.
	pending     chan dialResult
	stream      *stream
	backoff     time.Duration
	nextAttempt time.Time
}

// New creates a connection to host:port and starts the first attempt in the
// background.
func New(host string, port int, opts ...Option) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Conn{
		host:        host,
		port:        port,
		address:     net.JoinHostPort(host, strconv.Itoa(port)),
		dialer:      &net.Dialer{},
		dialTimeout: DefaultDialTimeout,
		registry:    wire.NewRegistry(),
		logger:      slog.Default(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("peer", c.address)

	c.startDial()
	return c
}

// Host returns the remote host.
func (c *Conn) Host() string { return c.host }

// Port returns the remote port.
func (c *Conn) Port() int { return c.port }

// Address returns "host:port".
func (c *Conn) Address() string { return c.address }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Pull returns the next decoded message, or false if none is available now.
//
// Pull never blocks. When no stream is open it starts or polls a connection
// attempt; if the attempt completes during the call, decoding proceeds on the
// new stream. Transport errors are never returned: they demote the
// connection, which the caller observes as an empty pull.
func (c *Conn) Pull() (wire.Message, bool) {
	if c.isClosed() {
		return nil, false
	}

	if c.stream == nil {
		c.poll()
		if c.stream == nil {
			return nil, false
		}
	}

	return c.receive()
}

// Buffered returns the number of decoded messages waiting on the open
// stream, zero when no stream is open.
func (c *Conn) Buffered() int {
	if c.stream == nil {
		return 0
	}
	return c.stream.inbox.Len()
}

// Close tears down the stream and abandons any attempt in flight. A dial
// completing after Close has its stream closed and discarded. Pull returns
// false forever after.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	if c.pending != nil {
		select {
		case r := <-c.pending:
			if r.conn != nil {
				_ = r.conn.Close()
			}
		default:
		}
		c.pending = nil
	}

	var err error
	if c.stream != nil {
		err = c.stream.conn.Close()
		c.stream.inbox.Close()
		c.stream = nil
	}

	c.state.Store(int32(StateDisconnected))
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// poll starts an attempt if none is in flight and the backoff allows it, then
// collects the attempt's result if it is ready.
func (c *Conn) poll() {
	if c.pending == nil {
		if c.now().Before(c.nextAttempt) {
			return
		}
		c.startDial()
	}

	select {
	case r := <-c.pending:
		c.pending = nil
		if r.err != nil {
			c.dialFailed(r.err)
			return
		}
		c.open(r.conn)
	default:
	}
}

// startDial launches a worker for one bounded attempt.
func (c *Conn) startDial() {
	result := make(chan dialResult, 1)
	c.pending = result
	c.state.Store(int32(StateConnecting))

	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.dialTimeout)
		defer cancel()

		conn, err := c.dialer.DialContext(ctx, "tcp", c.address)

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.closed {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		result <- dialResult{conn: conn, err: err}
	}()
}

func (c *Conn) dialFailed(err error) {
	c.state.Store(int32(StateDisconnected))

	if c.backoffMin > 0 {
		if c.backoff == 0 {
			c.backoff = c.backoffMin
		} else {
			c.backoff *= 2
			if c.backoff > c.backoffMax {
				c.backoff = c.backoffMax
			}
		}
		c.nextAttempt = c.now().Add(c.backoff)
	}

	c.logger.Debug("dial failed", "error", err, "retry_in", c.backoff)
}

// open installs a freshly dialed stream and starts decoding it.
func (c *Conn) open(conn net.Conn) {
	s := &stream{
		conn:  conn,
		inbox: queue.New[wire.Message](),
		done:  make(chan struct{}),
	}
	c.stream = s
	c.backoff = 0
	c.nextAttempt = time.Time{}
	c.state.Store(int32(StateConnected))

	c.logger.Info("peer connected")

	dec := wire.NewDecoder(conn, c.registry, c.logger)
	go func() {
		defer close(s.done)
		for {
			m, err := dec.Decode()
			if err != nil {
				s.err = err
				return
			}
			s.inbox.Enqueue(m)
		}
	}()
}

// receive returns the next message of the open stream. Once the reader has
// stopped and the inbox is drained, the stream is torn down.
func (c *Conn) receive() (wire.Message, bool) {
	s := c.stream

	if m, ok := s.inbox.TryDequeue(); ok {
		return m, true
	}

	select {
	case <-s.done:
		// The reader enqueues everything before closing done.
		if m, ok := s.inbox.TryDequeue(); ok {
			return m, true
		}
		c.demote(s.err)
	default:
	}

	return nil, false
}

func (c *Conn) demote(cause error) {
	_ = c.stream.conn.Close()
	c.stream.inbox.Close()
	c.stream = nil
	c.state.Store(int32(StateDisconnected))

	if cause == nil || errors.Is(cause, io.EOF) {
		c.logger.Info("peer disconnected")
		return
	}
	c.logger.Info("peer disconnected", "error", cause)
}
