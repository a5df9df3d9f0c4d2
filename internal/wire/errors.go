package wire

import (
	"errors"
	"fmt"
)

// ProtocolErrorCode categorizes protocol errors.
type ProtocolErrorCode string

const (
	// ErrCodeUnknownType indicates a record whose type name is not registered.
	ErrCodeUnknownType ProtocolErrorCode = "UNKNOWN_TYPE"

	// ErrCodeMalformed indicates a record whose fields could not be parsed,
	// or a message whose fields cannot be written on one line.
	ErrCodeMalformed ProtocolErrorCode = "MALFORMED_RECORD"

	// ErrCodeDuplicateType indicates a second registration of a type name.
	ErrCodeDuplicateType ProtocolErrorCode = "DUPLICATE_TYPE"
)

// ProtocolError reports a record that violates the wire format.
//
// Decoders log and skip records failing with a ProtocolError; the stream
// itself stays usable.
type ProtocolError struct {
	// Code identifies the error category.
	Code ProtocolErrorCode

	// Name is the type name of the offending record, if known.
	Name string

	// Detail is a human-readable description.
	Detail string

	// Err is the underlying parse error, if any.
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	msg := string(e.Code)
	if e.Name != "" {
		msg = fmt.Sprintf("%s (type=%s)", msg, e.Name)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying parse error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError returns true if err is, or wraps, a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsUnknownType returns true if err reports an unregistered type name.
func IsUnknownType(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeUnknownType
	}
	return false
}
