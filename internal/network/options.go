package network

import (
	"log/slog"

	"github.com/roach88/lockstep/internal/peer"
	"github.com/roach88/lockstep/internal/service"
	"github.com/roach88/lockstep/internal/wire"
)

// DefaultMinHorizon is the number of batches every peer must have buffered
// before a tick is released.
const DefaultMinHorizon = 1

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMinHorizon sets the initial minimum horizon. Values below one keep
// the default.
func WithMinHorizon(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n >= 1 {
			c.minHorizon = n
		}
	}
}

// WithPreferredHorizon sets how many inactive batches a peer buffer retains.
// By default it follows the minimum horizon at the time the peer is
// connected.
func WithPreferredHorizon(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.preferredHorizon = n
	}
}

// WithListenHost sets the host services listen on. Default: all interfaces.
func WithListenHost(host string) CoordinatorOption {
	return func(c *Coordinator) {
		c.listenHost = host
	}
}

// WithLogger sets the logger handed to the coordinator, its peers and its
// services.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRegistry sets the message registry used to decode peer streams.
func WithRegistry(r *wire.Registry) CoordinatorOption {
	return func(c *Coordinator) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithRecorder records every released tick.
func WithRecorder(r Recorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// WithSessionGenerator sets the session id source. Default: UUIDv7Generator.
func WithSessionGenerator(g SessionGenerator) CoordinatorOption {
	return func(c *Coordinator) {
		if g != nil {
			c.sessions = g
		}
	}
}

// WithPeerOptions appends options applied to every peer connection.
func WithPeerOptions(opts ...peer.Option) CoordinatorOption {
	return func(c *Coordinator) {
		c.peerOpts = append(c.peerOpts, opts...)
	}
}

// WithServiceOptions appends options applied to every service.
func WithServiceOptions(opts ...service.Option) CoordinatorOption {
	return func(c *Coordinator) {
		c.serviceOpts = append(c.serviceOpts, opts...)
	}
}
