package future

import (
	"github.com/roach88/lockstep/internal/wire"
)

// Batch is the ordered list of messages of one tick for one peer.
// The last element is always the tick marker that closed it.
type Batch []wire.Message

// Marker returns the tick marker closing the batch.
func (b Batch) Marker() *wire.Sync {
	if len(b) == 0 {
		return nil
	}
	s, _ := wire.AsSync(b[len(b)-1])
	return s
}

// Messages returns the application messages of the batch, without the
// closing marker.
func (b Batch) Messages() []wire.Message {
	if len(b) == 0 {
		return nil
	}
	return b[:len(b)-1]
}

// Buffer turns the message stream of one peer into horizon-bounded batches.
//
// A Buffer is owned by the coordinator and is not safe for concurrent use.
//
// INVARIANTS:
//   - Horizon() == number of queued batches
//   - no queued batch is empty; each ends with its marker
//   - pending never holds a marker; a marker closes pending at once
type Buffer struct {
	preferred int
	pending   Batch
	ready     []Batch
}

// New creates a buffer retaining at most preferredHorizon batches closed by
// inactive markers.
func New(preferredHorizon int) *Buffer {
	if preferredHorizon < 0 {
		preferredHorizon = 0
	}
	return &Buffer{preferred: preferredHorizon}
}

// PreferredHorizon returns the retention bound for inactive batches.
func (b *Buffer) PreferredHorizon() int {
	return b.preferred
}

// Push appends a message to the batch in progress.
//
// If the message is a tick marker, the batch in progress, marker included,
// is queued when the marker is active or the horizon is below the preferred
// horizon. Otherwise it is dropped. In both cases a new batch starts.
func (b *Buffer) Push(m wire.Message) {
	if m == nil {
		return
	}

	b.pending = append(b.pending, m)

	s, ok := wire.AsSync(m)
	if !ok {
		return
	}

	if s.Active() || len(b.ready) < b.preferred {
		b.ready = append(b.ready, b.pending)
	}
	b.pending = nil
}

// Horizon returns the number of closed batches available for consumption.
func (b *Buffer) Horizon() int {
	return len(b.ready)
}

// Pending returns the number of messages received since the last marker.
func (b *Buffer) Pending() int {
	return len(b.pending)
}

// PeekMarker returns the marker closing the i-th queued batch without
// consuming it. Index 0 is the oldest batch.
func (b *Buffer) PeekMarker(i int) (*wire.Sync, error) {
	if i < 0 || i >= len(b.ready) {
		return nil, &PreconditionError{Op: "peek", Index: i, Horizon: len(b.ready)}
	}
	return b.ready[i].Marker(), nil
}

// Next removes and returns the oldest queued batch.
// Fails with a PreconditionError when the horizon is zero.
func (b *Buffer) Next() (Batch, error) {
	if len(b.ready) == 0 {
		return nil, &PreconditionError{Op: "next", Horizon: 0}
	}

	batch := b.ready[0]
	b.ready[0] = nil

	if len(b.ready) == 1 {
		b.ready = b.ready[:0]
	} else {
		b.ready = b.ready[1:]
	}

	return batch, nil
}
