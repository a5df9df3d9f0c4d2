// Package network implements the lockstep coordinator.
//
// The Coordinator owns the services this process hosts and the peers it is
// a client of. Once per simulation frame the application calls Synchronize,
// then BroadcastTick:
//
//	if coord.Synchronize(ctx) {
//	    step(coord)        // every peer's batch for tick SyncID() is available
//	}
//	coord.BroadcastTick()   // announce SyncID()+MinHorizon() if released
//
// ARCHITECTURE:
//
// Single-Writer Frame Loop:
// Every Coordinator method runs on the goroutine driving the frames. Network
// I/O happens on goroutines owned by peer.Conn and service.Service, which
// hand data over through queues; the coordinator never blocks on them.
//
// Release Rule:
// A tick is released iff every peer's oldest batch is closed by an active
// marker whose id equals SyncID, and no peer is filling. A peer starts
// filling whenever its horizon drops to zero and stops once its horizon
// reaches MinHorizon. On release the oldest batch of every peer is consumed
// in the same call.
//
// Pipelining:
// BroadcastTick announces tick SyncID+MinHorizon, and a newly accepted
// client is primed with MinHorizon active markers starting at SyncID, so the
// remote side always has MinHorizon batches in flight.
//
// INVARIANTS:
//   - SyncID never decreases; it grows by exactly one per released tick
//   - peers advance together: either all consume a batch or none does
//   - batches are consumed in the order they were closed
package network
