// Package errors provides centralized error definitions and classification
// helpers for the Overseer workflow core. It defines the failure taxonomy
// used by the recovery handler (which categories are retryable and within
// what bounds), semantic errors for the state store, and constructors that
// carry workflow context (stage, phase, session).
//
// # Failure Taxonomy
//
//   - ValidationFailureError: a phase failed validation; retryable within the
//     phase retry budget.
//   - SessionCrashError: an execution session died; retryable within the
//     (tighter) session retry budget, requires process cleanup first.
//   - GamingError: retries without genuine progress; a policy block, never
//     retryable.
//   - MaxIterationsError: the iteration budget for a unit is exhausted;
//     terminal for the current run.
//   - InterruptError: the user interrupted the run; terminal, resumable.
//   - CleanupError: process cleanup partially failed; non-fatal, logged.
//
// State-store errors are fatal to the current run: ErrStateNotFound and
// ErrStateCorrupt have no automatic recovery.
//
// # Usage
//
//	err := errors.NewValidationFailureError("phase validation failed", cause).
//		WithStage(1).WithPhase("feature-breakdown")
//
//	if errors.Is(err, errors.ErrStateNotFound) { ... }
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// State-store sentinel errors. Both not-found and corrupt are fatal to the
// current run: there is no automatic recovery.
var (
	// ErrStateNotFound indicates no workflow state document exists.
	ErrStateNotFound = New("workflow state not found")
	// ErrStateCorrupt indicates the state document could not be decoded.
	ErrStateCorrupt = New("workflow state corrupt")
	// ErrAlreadyInitialized indicates a state document already exists and
	// initialization would overwrite it without an explicit force.
	ErrAlreadyInitialized = New("workflow already initialized")
)

// Workflow structure sentinel errors.
var (
	// ErrStageNotFound indicates the referenced stage does not exist.
	ErrStageNotFound = New("stage not found")
	// ErrPhaseNotFound indicates the referenced phase does not exist.
	ErrPhaseNotFound = New("phase not found")
	// ErrSessionNotFound indicates the referenced session does not exist.
	ErrSessionNotFound = New("session not found")
)

// Recovery sentinel errors.
var (
	// ErrGamingDetected indicates the gaming score exceeded the block threshold.
	ErrGamingDetected = New("gaming detected")
	// ErrMaxRetriesExceeded indicates the retry budget for a unit is spent.
	ErrMaxRetriesExceeded = New("max retries exceeded")
	// ErrInterrupted indicates the run was interrupted by the user.
	ErrInterrupted = New("interrupted by user")
)

// General sentinel errors.
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// WorkflowError is the base interface for all Overseer errors. It extends the
// standard error interface with classification methods the recovery handler
// relies on.
type WorkflowError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry
	// (subject to the retry budget, which this package does not track).
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to surface
	// to end users verbatim.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// scopePrefix renders an error prefix with optional stage/phase/session context.
func scopePrefix(kind string, stage int, phase, session string) string {
	var parts []string
	if stage > 0 {
		parts = append(parts, fmt.Sprintf("stage=%d", stage))
	}
	if phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", phase))
	}
	if session != "" {
		parts = append(parts, fmt.Sprintf("session=%s", session))
	}
	if len(parts) == 0 {
		return kind
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
}

// -----------------------------------------------------------------------------
// Failure Taxonomy
// -----------------------------------------------------------------------------

// ValidationFailureError represents a phase that failed its validation pass.
// Retryable within the phase retry budget.
//
// Example:
//
//	err := errors.NewValidationFailureError("validation failed", cause).
//		WithStage(1).WithPhase("feature-breakdown")
type ValidationFailureError struct {
	baseError
	Stage int
	Phase string
}

// NewValidationFailureError creates a new ValidationFailureError.
func NewValidationFailureError(message string, cause error) *ValidationFailureError {
	return &ValidationFailureError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithStage adds the stage number to the error context.
func (e *ValidationFailureError) WithStage(stage int) *ValidationFailureError {
	e.Stage = stage
	return e
}

// WithPhase adds the phase name to the error context.
func (e *ValidationFailureError) WithPhase(phase string) *ValidationFailureError {
	e.Phase = phase
	return e
}

// Error returns the formatted error message.
func (e *ValidationFailureError) Error() string {
	prefix := scopePrefix("validation failure", e.Stage, e.Phase, "")
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationFailureError) Is(target error) bool {
	if _, ok := target.(*ValidationFailureError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// SessionCrashError represents an execution session that died before
// completing. Retryable within the session retry budget, but the recovery
// handler must run process cleanup before re-issuing.
type SessionCrashError struct {
	baseError
	SessionID string
}

// NewSessionCrashError creates a new SessionCrashError.
func NewSessionCrashError(message string, cause error) *SessionCrashError {
	return &SessionCrashError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithSessionID adds the session ID to the error context.
func (e *SessionCrashError) WithSessionID(id string) *SessionCrashError {
	e.SessionID = id
	return e
}

// Error returns the formatted error message.
func (e *SessionCrashError) Error() string {
	prefix := scopePrefix("session crash", 0, "", e.SessionID)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionCrashError) Is(target error) bool {
	if _, ok := target.(*SessionCrashError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// GamingError represents a policy block: the executor retried without making
// genuine progress. Never retryable, regardless of remaining budget.
type GamingError struct {
	baseError
	Stage int
	Phase string
	Score float64
}

// NewGamingError creates a new GamingError with the accumulated score.
func NewGamingError(message string, score float64) *GamingError {
	return &GamingError{
		baseError: baseError{
			message:    message,
			cause:      ErrGamingDetected,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
		Score: score,
	}
}

// WithStage adds the stage number to the error context.
func (e *GamingError) WithStage(stage int) *GamingError {
	e.Stage = stage
	return e
}

// WithPhase adds the phase name to the error context.
func (e *GamingError) WithPhase(phase string) *GamingError {
	e.Phase = phase
	return e
}

// Error returns the formatted error message.
func (e *GamingError) Error() string {
	prefix := scopePrefix("gaming violation", e.Stage, e.Phase, "")
	return fmt.Sprintf("%s: %s (score %.2f)", prefix, e.message, e.Score)
}

// Is checks if this error matches the target.
func (e *GamingError) Is(target error) bool {
	if _, ok := target.(*GamingError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// MaxIterationsError represents an exhausted iteration budget. Terminal for
// the current run; the partial-completion report carries resume instructions.
type MaxIterationsError struct {
	baseError
	Iterations int
}

// NewMaxIterationsError creates a new MaxIterationsError.
func NewMaxIterationsError(iterations int) *MaxIterationsError {
	return &MaxIterationsError{
		baseError: baseError{
			message:    fmt.Sprintf("iteration budget exhausted after %d iterations", iterations),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Iterations: iterations,
	}
}

// Is checks if this error matches the target.
func (e *MaxIterationsError) Is(target error) bool {
	if _, ok := target.(*MaxIterationsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// InterruptError represents a user interrupt. Terminal but resumable.
type InterruptError struct {
	baseError
}

// NewInterruptError creates a new InterruptError.
func NewInterruptError() *InterruptError {
	return &InterruptError{
		baseError: baseError{
			message:    "run interrupted by user",
			cause:      ErrInterrupted,
			severity:   SeverityInfo,
			retryable:  false,
			userFacing: true,
		},
	}
}

// Is checks if this error matches the target.
func (e *InterruptError) Is(target error) bool {
	if _, ok := target.(*InterruptError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CleanupError represents a partial process-cleanup failure. Non-fatal: the
// batch continues and the failure is logged, never propagated as a run abort.
type CleanupError struct {
	baseError
	PIDs []int
}

// NewCleanupError creates a new CleanupError for the PIDs that could not be
// terminated.
func NewCleanupError(pids []int, cause error) *CleanupError {
	return &CleanupError{
		baseError: baseError{
			message:    fmt.Sprintf("failed to terminate %d process(es)", len(pids)),
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: false,
		},
		PIDs: pids,
	}
}

// Is checks if this error matches the target.
func (e *CleanupError) Is(target error) bool {
	if _, ok := target.(*CleanupError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("artifact", "feature_list")
//	fmt.Println(err) // "artifact 'feature_list' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state (distinct from a phase
// ValidationFailureError: this is bad data handed to an API, not a failed
// validation pass over produced work).
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a condition the recovery
// handler may retry (subject to its budgets). Gaming, interrupts, exhausted
// budgets, and state-store failures are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var wfErr WorkflowError
	if As(err, &wfErr) {
		return wfErr.IsRetryable()
	}

	if Is(err, ErrTimeout) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var wfErr WorkflowError
	if As(err, &wfErr) {
		return wfErr.IsUserFacing()
	}

	var notFound *NotFoundError
	var validation *ValidationError
	if As(err, &notFound) || As(err, &validation) {
		return true
	}

	return false
}

// IsFatal returns true for errors that end the current run with no automatic
// recovery: missing or corrupt state.
func IsFatal(err error) bool {
	return Is(err, ErrStateNotFound) || Is(err, ErrStateCorrupt)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement WorkflowError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var wfErr WorkflowError
	if As(err, &wfErr) {
		return wfErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
