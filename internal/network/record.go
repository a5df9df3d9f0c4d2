package network

import (
	"context"

	"github.com/roach88/lockstep/internal/future"
)

// Recorder persists released ticks. The tick journal implements it.
type Recorder interface {
	RecordTick(ctx context.Context, tick Tick) error
}

// Tick is one released tick: the batch every peer contributed to it.
type Tick struct {
	// Session identifies the coordinator that released the tick.
	Session string

	// ID is the tick id, equal to the coordinator's SyncID at release.
	ID uint64

	// Batches holds one batch per peer, in peer order.
	Batches []PeerBatch
}

// PeerBatch is the batch one peer contributed to a tick.
type PeerBatch struct {
	Peer  Endpoint
	Batch future.Batch
}
