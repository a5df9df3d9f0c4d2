// Package future groups the message stream of one peer into tick batches.
//
// A Buffer receives messages in arrival order. Each tick marker closes the
// batch in progress: the marker and everything received since the previous
// marker become one Batch. Closed batches wait in a FIFO queue until the
// coordinator consumes them; the number of queued batches is the peer's
// horizon.
//
// Retention policy: a batch closed by an active marker is always queued. A
// batch closed by an inactive marker is queued only while the horizon is
// below the preferred horizon, otherwise it is discarded whole. Inactive
// markers exist only to fill the pipeline of a peer that just connected, so
// a peer that stalls cannot make the buffer grow without bound on them.
package future
