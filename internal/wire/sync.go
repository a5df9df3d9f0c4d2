package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// SyncName is the registered type name of the tick marker.
const SyncName = "lockstep.sync"

// Sync is the tick marker closing a batch of messages.
//
// An active marker closes a tick the coordinator intends to consume. An
// inactive marker only primes the pipeline of a new peer and may be dropped
// by the receiving buffer.
//
// A Sync is immutable once constructed; the only mutation is the date
// stamped by the sender.
type Sync struct {
	Header
	id     uint64
	active bool
}

// NewSync creates a tick marker for the given tick.
func NewSync(id uint64, active bool) *Sync {
	return &Sync{id: id, active: active}
}

// Name returns SyncName.
func (s *Sync) Name() string {
	return SyncName
}

// ID returns the tick identifier closed by this marker.
func (s *Sync) ID() uint64 {
	return s.id
}

// Active reports whether the marker closes a tick that must be consumed.
func (s *Sync) Active() bool {
	return s.active
}

// MarshalFields returns "<tick_id> <active:0|1>".
func (s *Sync) MarshalFields() (string, error) {
	active := 0
	if s.active {
		active = 1
	}
	return fmt.Sprintf("%d %d", s.id, active), nil
}

// UnmarshalFields parses "<tick_id> <active:0|1>".
func (s *Sync) UnmarshalFields(fields string) error {
	parts := strings.Fields(fields)
	if len(parts) != 2 {
		return fmt.Errorf("sync: expected 2 fields, got %d", len(parts))
	}

	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return fmt.Errorf("sync: tick id: %w", err)
	}

	switch parts[1] {
	case "0":
		s.active = false
	case "1":
		s.active = true
	default:
		return fmt.Errorf("sync: active flag must be 0 or 1, got %q", parts[1])
	}

	s.id = id
	return nil
}

// String formats the marker for logs.
func (s *Sync) String() string {
	if s.active {
		return fmt.Sprintf("sync(%d)", s.id)
	}
	return fmt.Sprintf("sync(%d, inactive)", s.id)
}

// AsSync returns the message as a tick marker, if it is one.
func AsSync(m Message) (*Sync, bool) {
	s, ok := m.(*Sync)
	return s, ok
}
