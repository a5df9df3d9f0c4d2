package network

import (
	"errors"
	"fmt"
)

// UsageErrorCode categorizes usage errors.
type UsageErrorCode string

const (
	// ErrCodeUnknownService indicates a send to a service that was never opened.
	ErrCodeUnknownService UsageErrorCode = "UNKNOWN_SERVICE"

	// ErrCodePeerIndex indicates a peer index outside [0, PeerCount()).
	ErrCodePeerIndex UsageErrorCode = "PEER_INDEX"

	// ErrCodeInvalidHorizon indicates a minimum horizon below one.
	ErrCodeInvalidHorizon UsageErrorCode = "INVALID_HORIZON"
)

// UsageError reports a call the coordinator refuses because of how it was
// made, not because of the network. These are programmer errors.
type UsageError struct {
	// Code identifies the error category.
	Code UsageErrorCode

	// Message is a human-readable description.
	Message string

	// Service is the service name, for ErrCodeUnknownService.
	Service string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s: %s (service=%s)", e.Code, e.Message, e.Service)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUsageError returns true if err is or wraps a UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

// IsUnknownService returns true if err reports a send to an unopened service.
// Uses errors.As to handle wrapped errors.
func IsUnknownService(err error) bool {
	var ue *UsageError
	if errors.As(err, &ue) {
		return ue.Code == ErrCodeUnknownService
	}
	return false
}

func newUnknownServiceError(name string) *UsageError {
	return &UsageError{
		Code:    ErrCodeUnknownService,
		Message: "service was never opened",
		Service: name,
	}
}

func newPeerIndexError(i, count int) *UsageError {
	return &UsageError{
		Code:    ErrCodePeerIndex,
		Message: fmt.Sprintf("peer index %d out of range [0, %d)", i, count),
	}
}

func newInvalidHorizonError(n int) *UsageError {
	return &UsageError{
		Code:    ErrCodeInvalidHorizon,
		Message: fmt.Sprintf("minimum horizon must be at least 1, got %d", n),
	}
}
