// Package peer implements the outbound connection to one remote service.
//
// A Conn owns at most one TCP stream. Dialing runs on a worker goroutine and
// hands the opened stream back over a one-shot channel; decoding runs on a
// reader goroutine that fills an inbox. The coordinator only ever calls the
// non-blocking Pull, so a slow or unreachable peer never stalls a frame.
//
// State machine:
//
//	CONNECTING -> CONNECTED -> DISCONNECTED -> CONNECTING ...
//
// Any I/O error demotes the connection to DISCONNECTED; the next Pull starts
// a new attempt, after the retry backoff if one is configured.
package peer
