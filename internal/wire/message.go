package wire

// Message is an application-level record exchanged between peers.
//
// Implementations are usually small structs embedding Header. Name must be
// stable for the lifetime of the protocol: it is the key used by the
// receiving Registry.
type Message interface {
	// Name returns the registered type name of the message.
	Name() string

	// Date returns the logical tick stamped on the message.
	Date() uint64

	// SetDate stamps the logical tick. The coordinator calls it right before
	// the message is broadcast.
	SetDate(date uint64)

	// MarshalFields serializes the message payload on a single line.
	MarshalFields() (string, error)

	// UnmarshalFields parses a payload produced by MarshalFields.
	UnmarshalFields(fields string) error
}

// Header carries the logical date shared by every message.
// Embed it to satisfy the Date and SetDate methods of Message.
type Header struct {
	date uint64
}

// Date returns the logical tick stamped on the message.
func (h *Header) Date() uint64 {
	return h.date
}

// SetDate stamps the logical tick.
func (h *Header) SetDate(date uint64) {
	h.date = date
}
