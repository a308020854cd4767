package autopoiesis

import (
	"errors"
	"strings"
)

// Sentinel errors for registry and ledger operations. All are local,
// recoverable conditions inside a tick: the rule engine treats a failed rule
// application as "rule does not fire" and keeps evaluating the remaining
// candidates. They never surface to users during normal operation.
var (
	// ErrNotFound reports a stale or unknown handle or bond id. Hitting it
	// outside a deliberate liveness probe signals a logic bug in the caller.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyBonded reports that the unordered pair already has a bond.
	ErrAlreadyBonded = errors.New("already bonded")

	// ErrCapacityExceeded reports either the world particle cap or a bond
	// slot limit being hit.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidParticipant reports a bond attempt on a handle that is not a
	// live link.
	ErrInvalidParticipant = errors.New("invalid participant")

	// ErrStopped reports a Step call on a stopped stepper. Stopped is
	// terminal; construct a new stepper to run again.
	ErrStopped = errors.New("stepper is stopped")
)

// ValidationError collects multiple configuration issues so a malformed
// config reports everything wrong with it at once.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid config: unknown validation error"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0]
	}
	return "config validation errors: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}
