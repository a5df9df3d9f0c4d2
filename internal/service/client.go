package service

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/roach88/lockstep/internal/queue"
)

// ErrClientGone is returned when sending to a client that has failed or
// hung up.
var ErrClientGone = errors.New("client gone")

// Client is one inbound stream adopted by a Service.
type Client struct {
	id           uint64
	conn         net.Conn
	outbox       *queue.FIFO[[]byte]
	writeTimeout time.Duration
	logger       *slog.Logger
	gone         atomic.Bool
	closeBy      atomic.Int64 // unix nanos; zero until closeWithin
}

func newClient(id uint64, conn net.Conn, writeTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		id:           id,
		conn:         conn,
		outbox:       queue.New[[]byte](),
		writeTimeout: writeTimeout,
		logger:       logger.With("client", id, "remote", conn.RemoteAddr().String()),
	}
}

// ID returns the per-service sequence number of the client, starting at 1.
func (c *Client) ID() uint64 { return c.id }

// RemoteAddr returns the remote address of the stream.
func (c *Client) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Alive reports whether the client can still receive records.
func (c *Client) Alive() bool { return !c.gone.Load() }

// Pending returns the number of records queued but not yet written.
func (c *Client) Pending() int { return c.outbox.Len() }

func (c *Client) enqueue(record []byte) error {
	if c.gone.Load() || !c.outbox.Enqueue(record) {
		return ErrClientGone
	}
	return nil
}

// writeLoop writes queued records until the outbox is closed and drained,
// or a write fails.
func (c *Client) writeLoop() {
	defer c.conn.Close()

	for {
		if record, ok := c.outbox.TryDequeue(); ok {
			if d := c.deadline(); !d.IsZero() {
				_ = c.conn.SetWriteDeadline(d)
			}
			if _, err := c.conn.Write(record); err != nil {
				if c.markGone() {
					c.logger.Warn("client write failed", "error", err)
				}
				return
			}
			continue
		}
		if c.outbox.Closed() {
			return
		}
		<-c.outbox.Wait()
	}
}

// readLoop discards inbound bytes. It only exists to notice the remote end
// hanging up.
func (c *Client) readLoop() {
	_, err := io.Copy(io.Discard, c.conn)
	if c.markGone() {
		if err == nil || errors.Is(err, net.ErrClosed) {
			c.logger.Info("client hung up")
		} else {
			c.logger.Info("client hung up", "error", err)
		}
	}
}

// deadline returns the write deadline for the next record: the write
// timeout, capped by the close deadline once closeWithin was called.
func (c *Client) deadline() time.Time {
	var d time.Time
	if c.writeTimeout > 0 {
		d = time.Now().Add(c.writeTimeout)
	}
	if by := c.closeBy.Load(); by != 0 {
		if t := time.Unix(0, by); d.IsZero() || t.Before(d) {
			d = t
		}
	}
	return d
}

// closeWithin stops accepting records. Queued records are still written,
// but only until grace has passed; a write in progress is interrupted then.
func (c *Client) closeWithin(grace time.Duration) {
	by := time.Now().Add(grace)
	c.closeBy.Store(by.UnixNano())
	c.outbox.Close()
	_ = c.conn.SetWriteDeadline(by)
}

// markGone flags the client dead and wakes its writer. Reports whether this
// call did it.
func (c *Client) markGone() bool {
	if !c.gone.CompareAndSwap(false, true) {
		return false
	}
	c.outbox.Close()
	return true
}
