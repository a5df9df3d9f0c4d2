package service

import (
	"log/slog"
	"time"
)

// DefaultWriteTimeout bounds a single record write to a client.
const DefaultWriteTimeout = time.Second

// DefaultCloseGrace bounds how long Close keeps flushing queued records.
const DefaultCloseGrace = 2 * time.Second

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The service adds a "service" attribute.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWriteTimeout bounds each write to a client. A client whose write
// times out is dropped. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.writeTimeout = d
		}
	}
}

// WithNewPeerHandler registers the callback AcceptPending invokes for every
// client it adopts, before AcceptPending returns.
func WithNewPeerHandler(fn func(*Client)) Option {
	return func(s *Service) {
		s.onNewPeer = fn
	}
}

// WithCloseGrace bounds how long Close flushes queued records before
// dropping the remaining ones. It applies even when the write timeout is
// disabled.
func WithCloseGrace(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.closeGrace = d
		}
	}
}
