package run

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a pipeline error by the phase that produced it.
// The class decides propagation: inventory and validation errors abort the
// run, execution and idempotency issues are recorded and surfaced, bundling
// errors never invalidate already-persisted logs.
type ErrorClass string

const (
	// ErrorClassInventory indicates a bad or missing target specification.
	// Fatal: nothing runs, no run directory is created.
	ErrorClassInventory ErrorClass = "inventory"

	// ErrorClassPolicy indicates the artifact was rejected by the policy
	// gate before any stage ran.
	ErrorClassPolicy ErrorClass = "policy"

	// ErrorClassValidation indicates the SyntaxCheck stage failed.
	// Remaining stages are skipped; the run still bundles.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassExecution indicates the Apply stage failed. Recorded in
	// the summary; bundling still happens.
	ErrorClassExecution ErrorClass = "execution"

	// ErrorClassIdempotency indicates the idempotency re-check reported
	// residual changes. Distinct from an execution failure.
	ErrorClassIdempotency ErrorClass = "idempotency"

	// ErrorClassBundling indicates the evidence archive could not be
	// written or finalized.
	ErrorClassBundling ErrorClass = "bundling"
)

// Error is a classified pipeline error with optional stage and target
// context.
type Error struct {
	// Class is the error classification for propagation decisions.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Stage is the stage being executed when the error occurred, if any.
	Stage Stage `json:"stage,omitempty"`

	// Target is the host or logical target involved, if applicable.
	Target string `json:"target,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Stage != "" {
		msg += fmt.Sprintf(" (stage=%s)", e.Stage)
	}
	if e.Target != "" {
		msg += fmt.Sprintf(" (target=%s)", e.Target)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithStage adds stage context to the error.
func (e *Error) WithStage(s Stage) *Error {
	e.Stage = s
	return e
}

// WithTarget adds target context to the error.
func (e *Error) WithTarget(target string) *Error {
	e.Target = target
	return e
}

// NewInventoryError creates an inventory resolution error.
func NewInventoryError(message string, err error) *Error {
	return &Error{Class: ErrorClassInventory, Message: message, Err: err}
}

// NewPolicyError creates a policy gate rejection error.
func NewPolicyError(message string, err error) *Error {
	return &Error{Class: ErrorClassPolicy, Message: message, Err: err}
}

// NewValidationError creates a syntax check failure error.
func NewValidationError(message string, err error) *Error {
	return &Error{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewExecutionError creates an apply stage failure error.
func NewExecutionError(message string, err error) *Error {
	return &Error{Class: ErrorClassExecution, Message: message, Err: err}
}

// NewIdempotencyViolation creates an error recording residual changes
// detected by the idempotency re-check.
func NewIdempotencyViolation(message string) *Error {
	return &Error{Class: ErrorClassIdempotency, Message: message}
}

// NewBundlingError creates an evidence archival error.
func NewBundlingError(message string, err error) *Error {
	return &Error{Class: ErrorClassBundling, Message: message, Err: err}
}

// classOf extracts the class from an error chain.
func classOf(err error) (ErrorClass, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsInventoryError returns true if the error is an inventory error.
func IsInventoryError(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassInventory
}

// IsPolicyError returns true if the error is a policy rejection.
func IsPolicyError(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassPolicy
}

// IsValidationError returns true if the error is a syntax check failure.
func IsValidationError(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassValidation
}

// IsExecutionError returns true if the error is an apply failure.
func IsExecutionError(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassExecution
}

// IsIdempotencyViolation returns true if the error records residual changes.
func IsIdempotencyViolation(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassIdempotency
}

// IsBundlingError returns true if the error is a bundling failure.
func IsBundlingError(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassBundling
}

// IsFatal returns true if the error short-circuits the run before or during
// validation. Execution, idempotency, and bundling issues are recorded but
// never abort evidence collection.
func IsFatal(err error) bool {
	c, ok := classOf(err)
	if !ok {
		return false
	}
	return c == ErrorClassInventory || c == ErrorClassPolicy || c == ErrorClassValidation
}
