package custom_errors

import (
	"errors"
	"fmt"
)

var (
	// ErrGuard marks an action rejected before any remote call was made.
	ErrGuard = errors.New("guard violation")
	// ErrAction marks an action the remote API rejected or failed to perform.
	ErrAction = errors.New("action failed")
)

// GuardError is returned when an action is not allowed in the job's current state.
type GuardError struct {
	Action string
	JobID  string
	Reason string
}

func NewGuardError(action, jobID, reason string) *GuardError {
	return &GuardError{Action: action, JobID: jobID, Reason: reason}
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("cannot %s %s: %s", e.Action, e.JobID, e.Reason)
}

func (e *GuardError) Is(target error) bool {
	return target == ErrGuard
}

// ActionError wraps the remote failure of a trigger, pause, unpause or cancel.
type ActionError struct {
	Action string
	JobID  string
	Err    error
}

func NewActionError(action, jobID string, err error) *ActionError {
	return &ActionError{Action: action, JobID: jobID, Err: err}
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.JobID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func (e *ActionError) Is(target error) bool {
	return target == ErrAction
}
