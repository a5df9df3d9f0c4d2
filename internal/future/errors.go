package future

import (
	"errors"
	"fmt"
)

// ErrPrecondition is matched by every PreconditionError via errors.Is.
var ErrPrecondition = errors.New("precondition violated")

// PreconditionError reports a call the buffer's state does not allow, such
// as consuming a batch while the horizon is zero. These are programmer
// errors: the coordinator checks the horizon before consuming.
type PreconditionError struct {
	// Op is the operation that was refused.
	Op string

	// Index is the requested batch index, for PeekMarker.
	Index int

	// Horizon is the number of queued batches at the time of the call.
	Horizon int
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	if e.Op == "peek" {
		return fmt.Sprintf("%s: %s index %d with horizon %d", ErrPrecondition, e.Op, e.Index, e.Horizon)
	}
	return fmt.Sprintf("%s: %s with horizon %d", ErrPrecondition, e.Op, e.Horizon)
}

// Is makes errors.Is(err, ErrPrecondition) hold.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}
