package peer

// State is the lifecycle state of a Conn.
type State int32

const (
	// StateConnecting means a dial attempt is in flight.
	StateConnecting State = iota + 1

	// StateConnected means a stream is open and being decoded.
	StateConnected

	// StateDisconnected means no stream is open and no attempt is in flight.
	StateDisconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
