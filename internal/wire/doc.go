// Package wire defines the messages exchanged between lockstep peers and the
// record format that carries them over a stream.
//
// Every message is a named, self-describing record. On the wire a record is
// two lines:
//
//	<type-name>\n
//	<date> <fields>\n
//
// The date is the logical tick the sender stamped on the message. The fields
// are produced by the message itself and must fit on one line. Receivers look
// the type name up in a Registry to allocate the message before parsing its
// fields.
//
// The tick marker (Sync, type name "lockstep.sync") closes a tick batch. Its
// fields are "<tick_id> <active>", active being 0 or 1.
//
// Type names and text bodies are NFC normalized at the serialization
// boundary so that two peers producing the same text emit the same bytes.
package wire
