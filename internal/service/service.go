package service

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/lockstep/internal/wire"
)

// acceptBacklog is the number of accepted streams held until the next
// AcceptPending.
const acceptBacklog = 16

// Service broadcasts records to every stream accepted on one port.
//
// AcceptPending, Broadcast, SendTo, Clients and Close must be called from a
// single goroutine, the coordinator's.
type Service struct {
	name         string
	listener     net.Listener
	logger       *slog.Logger
	writeTimeout time.Duration
	closeGrace   time.Duration
	onNewPeer    func(*Client)

	accepted chan net.Conn
	quit     chan struct{}
	wg       sync.WaitGroup

	clients []*Client
	nextID  uint64
	closed  bool
}

// Listen opens a service named name on host:port. Port 0 picks a free port.
func Listen(name, host string, port int, opts ...Option) (*Service, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return Serve(name, l, opts...), nil
}

// Serve runs a service on an existing listener. The service owns the
// listener from then on.
func Serve(name string, l net.Listener, opts ...Option) *Service {
	s := &Service{
		name:         name,
		listener:     l,
		logger:       slog.Default(),
		writeTimeout: DefaultWriteTimeout,
		closeGrace:   DefaultCloseGrace,
		accepted:     make(chan net.Conn, acceptBacklog),
		quit:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("service", name)

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("service opened", "addr", l.Addr().String())
	return s
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Addr returns the listening address.
func (s *Service) Addr() net.Addr { return s.listener.Addr() }

// Port returns the listening TCP port.
func (s *Service) Port() int {
	if a, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

func (s *Service) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			select {
			case <-s.quit:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		select {
		case s.accepted <- conn:
		case <-s.quit:
			_ = conn.Close()
			return
		}
	}
}

// AcceptPending adopts every stream accepted since the last call, without
// blocking, and invokes the new peer handler for each. It returns the number
// of clients adopted.
func (s *Service) AcceptPending() int {
	n := 0
	for {
		select {
		case conn := <-s.accepted:
			s.nextID++
			c := newClient(s.nextID, conn, s.writeTimeout, s.logger)
			s.clients = append(s.clients, c)

			s.wg.Add(2)
			go func() {
				defer s.wg.Done()
				c.writeLoop()
			}()
			go func() {
				defer s.wg.Done()
				c.readLoop()
			}()

			c.logger.Info("peer accepted")
			if s.onNewPeer != nil {
				s.onNewPeer(c)
			}
			n++
		default:
			return n
		}
	}
}

// Broadcast writes m to every live client. The message is encoded once.
// Clients found dead are released; failing to reach one client never
// prevents delivery to the others. Only encoding errors are returned.
func (s *Service) Broadcast(m wire.Message) error {
	record, err := wire.Marshal(m)
	if err != nil {
		return err
	}

	live := s.clients[:0]
	for _, c := range s.clients {
		if err := c.enqueue(record); err != nil {
			c.logger.Debug("client released")
			continue
		}
		live = append(live, c)
	}
	for i := len(live); i < len(s.clients); i++ {
		s.clients[i] = nil
	}
	s.clients = live

	return nil
}

// SendTo writes m to a single client.
func (s *Service) SendTo(c *Client, m wire.Message) error {
	record, err := wire.Marshal(m)
	if err != nil {
		return err
	}
	return c.enqueue(record)
}

// Clients returns the adopted clients, including any that died since the
// last Broadcast.
func (s *Service) Clients() []*Client {
	out := make([]*Client, len(s.clients))
	copy(out, s.clients)
	return out
}

// ClientCount returns the number of live clients.
func (s *Service) ClientCount() int {
	n := 0
	for _, c := range s.clients {
		if c.Alive() {
			n++
		}
	}
	return n
}

// Close stops accepting, flushes every client's queued records and closes
// all streams. It waits for the service goroutines to exit. Flushing is
// bounded by the close grace, so a client that stopped reading cannot hold
// Close.
func (s *Service) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	close(s.quit)
	err := s.listener.Close()

	for _, c := range s.clients {
		c.closeWithin(s.closeGrace)
	}
	s.clients = nil

	s.wg.Wait()

	// Streams accepted but never adopted.
	for drained := false; !drained; {
		select {
		case conn := <-s.accepted:
			_ = conn.Close()
		default:
			drained = true
		}
	}

	s.logger.Info("service closed")

	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}
