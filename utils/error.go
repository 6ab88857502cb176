package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// Engine failure taxonomy. Handlers map these to HTTP status codes with
// errors.Is; everything else is treated as an internal error.
var (
	// ErrInvalidTransition: an operation was attempted outside its legal
	// lifecycle state (e.g. resolving a unit that is not under review).
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrValidation: the request itself is bad (missing contractor, empty
	// count set, malformed quantity). Nothing was applied.
	ErrValidation = errors.New("validation failed")

	// ErrThresholdConflict: a threshold row already exists for the same
	// (material, contractor) scope.
	ErrThresholdConflict = errors.New("threshold scope already exists")

	// ErrLedgerConflict: a conditional ledger write lost a race. The whole
	// resolve call was rolled back and is safe to retry.
	ErrLedgerConflict = errors.New("ledger version conflict")
)

func ValidationError(format string, a ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, a...)...)
}

func InvalidTransitionError(format string, a ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidTransition}, a...)...)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
