// Package service implements the listening side of a named channel.
//
// A Service accepts any number of inbound streams on one port. Accepting
// happens on a background goroutine; the coordinator adopts the accepted
// streams with the non-blocking AcceptPending. Every adopted Client has its
// own outbox and writer goroutine, so Broadcast never blocks on a slow
// reader and a failing client never prevents delivery to the others.
package service
