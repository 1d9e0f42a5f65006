package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound is returned when a flow, step, expense or assignment does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyDecided is returned when a decision targets an assignment or expense
	// that is no longer pending
	ErrAlreadyDecided = errors.New("already decided")

	// ErrStaleStep is returned when a decision targets a step that is not the
	// expense's current step. It belongs to the ErrAlreadyDecided class.
	ErrStaleStep = fmt.Errorf("%w: step is no longer current", ErrAlreadyDecided)

	// ErrConcurrentUpdate is returned when a conditional update lost a race
	ErrConcurrentUpdate = errors.New("concurrent update")

	// ErrInvalidDecision is returned for decisions other than APPROVED or REJECTED
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrInvalidFlow is returned when a flow definition is malformed
	ErrInvalidFlow = errors.New("invalid approval flow")
)

// IsConflict reports whether err means the request lost against an earlier decision
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyDecided) || errors.Is(err, ErrConcurrentUpdate) || errors.Is(err, ErrInvalidTransition)
}
