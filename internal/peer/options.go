package peer

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/roach88/lockstep/internal/wire"
)

// Dialer opens streams. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DialContext calls f.
func (f DialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

// DefaultDialTimeout bounds a single connection attempt.
const DefaultDialTimeout = 2 * time.Second

// Option configures a Conn.
type Option func(*Conn)

// WithDialer replaces the default *net.Dialer.
func WithDialer(d Dialer) Option {
	return func(c *Conn) {
		c.dialer = d
	}
}

// WithDialTimeout bounds each connection attempt. Zero or negative values
// keep the default.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithLogger sets the logger. The connection adds a "peer" attribute.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRegistry sets the registry used to decode incoming records.
func WithRegistry(r *wire.Registry) Option {
	return func(c *Conn) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithRetryBackoff delays the attempt following a failed dial. The delay
// starts at initial and doubles up to limit after each consecutive failure, and
// resets once a stream opens. A zero initial delay retries on every Pull.
func WithRetryBackoff(initial, limit time.Duration) Option {
	return func(c *Conn) {
		if initial < 0 {
			initial = 0
		}
		if limit < initial {
			limit = initial
		}
		c.backoffMin = initial
		c.backoffMax = limit
	}
}
