package runtime

import (
	"errors"
	"fmt"
	"time"
)

// StepNotFoundError is a definition-integrity failure: a transition computed
// a next-step id that does not exist in the flow. This indicates a bad flow
// definition, not a user mistake, and should be caught by CheckDefinition at
// authoring time.
type StepNotFoundError struct {
	StepID string
	Flow   string
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step %q not found in flow %q", e.StepID, e.Flow)
}

// ValidationError is a recoverable user-input failure: the session stays on
// the current step and the hint is surfaced as a corrective prompt.
type ValidationError struct {
	Kind  string
	Input string
	Hint  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("input %q is not a valid %s", e.Input, e.Kind)
}

// ActionError wraps a declarative action failure with the offending action
// type and execution metadata. Callers log it and continue; a broken
// optional integration must never block a user from finishing a flow.
type ActionError struct {
	ActionType string
	Err        error
	Metadata   map[string]any
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("action %s: %s", e.ActionType, e.Err.Error())
	}
	return fmt.Sprintf("action %s failed", e.ActionType)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// NewActionError wraps err with the failing action type.
func NewActionError(actionType string, err error) *ActionError {
	return &ActionError{
		ActionType: actionType,
		Err:        err,
		Metadata:   make(map[string]any),
	}
}

// WithMetadata attaches execution metadata to the error.
func (e *ActionError) WithMetadata(key string, value any) *ActionError {
	e.Metadata[key] = value
	return e
}

// ActionTimeoutError reports an action that exceeded the executor's ceiling.
type ActionTimeoutError struct {
	ActionType string
	Limit      time.Duration
}

func (e *ActionTimeoutError) Error() string {
	return fmt.Sprintf("action %s timed out after %s", e.ActionType, e.Limit)
}

// ErrSessionExpired is returned when a step arrives for a session that is
// absent or past its idle timeout.
var ErrSessionExpired = errors.New("session expired or not found")

// userMessage maps an error to the text shown to the end user. Only
// definition-integrity and input-validation failures are user-visible;
// everything else degrades silently.
func userMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Hint
	}
	var se *StepNotFoundError
	if errors.As(err, &se) {
		return "Sorry, something went wrong with this conversation step."
	}
	return "Sorry, something went wrong."
}
