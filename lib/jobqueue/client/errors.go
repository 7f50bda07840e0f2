package client

import "fmt"

// DomainError is any semantic rejection returned by the server-side script's
// single error channel. Callers that need to discriminate a specific
// rejection (e.g. a lost lock) use errors.As against the more specific
// types below, which all wrap DomainError.
type DomainError struct {
	Command string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("relayq: %s: %s", e.Command, e.Message)
}

// LostLock is raised when a heartbeat/complete/fail/move call is rejected
// because the calling worker no longer owns the job's lock.
type LostLock struct {
	*DomainError
}

func (e *LostLock) Unwrap() error {
	return e.DomainError
}

// TransportError wraps a connection-level failure (dial errors, timeouts,
// closed connections) that is not itself a script rejection. Invoke retries
// it with backoff up to the configured number of attempts, then returns it.
type TransportError struct {
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("relayq: transport error on %s: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProcessingError wraps any error raised by a user-supplied job processor,
// surfaced by job.Process before it is converted into a fail() call.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return "relayq: processing error: " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// ImportError indicates a processor name could not be resolved via the
// importer registry.
type ImportError struct {
	KlassName string
	Err       error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("relayq: import error for %q: %v", e.KlassName, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// MethodMissing indicates a processor does not implement the method named
// after the job's queue, nor a fallback Process method.
type MethodMissing struct {
	KlassName string
	Method    string
}

func (e *MethodMissing) Error() string {
	return fmt.Sprintf("relayq: %s has no method %q", e.KlassName, e.Method)
}

// MethodTypeError indicates the resolved processor method is not callable
// with the expected job-processing signature.
type MethodTypeError struct {
	KlassName string
	Method    string
}

func (e *MethodTypeError) Error() string {
	return fmt.Sprintf("relayq: %s.%s is not a valid job-processing method", e.KlassName, e.Method)
}
