package eventdispatcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/notification-service/internal/domain/events"
)

var (
	// ErrMalformedEnvelope matches every *MalformedEnvelopeError.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrHandlerTimeout matches every *HandlerTimeoutError.
	ErrHandlerTimeout = errors.New("handler timed out")
	// ErrHandlerFailure matches every *HandlerFailureError.
	ErrHandlerFailure = errors.New("handler failed")
	// ErrDispatcherClosed is returned for dispatches attempted after Close.
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)

// MalformedEnvelopeError reports an envelope rejected before any handler ran.
type MalformedEnvelopeError struct {
	EnvelopeID string
	Reason     string
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("malformed envelope %q: %s", e.EnvelopeID, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedEnvelope) true.
func (e *MalformedEnvelopeError) Is(target error) bool { return target == ErrMalformedEnvelope }

// HandlerTimeoutError reports a handler that did not return within its budget.
type HandlerTimeoutError struct {
	Handler string
	Timeout time.Duration
}

func (e *HandlerTimeoutError) Error() string {
	return fmt.Sprintf("handler %s exceeded timeout of %s", e.Handler, e.Timeout)
}

// Is makes errors.Is(err, ErrHandlerTimeout) true.
func (e *HandlerTimeoutError) Is(target error) bool { return target == ErrHandlerTimeout }

// HandlerFailureError reports a handler that returned an error or panicked.
type HandlerFailureError struct {
	Handler string
	Err     error
}

func (e *HandlerFailureError) Error() string {
	return fmt.Sprintf("handler %s failed: %v", e.Handler, e.Err)
}

func (e *HandlerFailureError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrHandlerFailure) true.
func (e *HandlerFailureError) Is(target error) bool { return target == ErrHandlerFailure }

// PanicError carries a recovered panic value and the stack it was raised on.
type PanicError struct {
	Handler string
	Value   any
	Stack   []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %s panicked: %v", e.Handler, e.Value)
}

// DispatchError is returned when the failure policy rejects a dispatch. The
// wrapped error joins every handler error of the envelope.
type DispatchError struct {
	EnvelopeID string
	Selector   events.Selector
	Tenant     string
	Policy     Policy
	Failed     int
	Total      int
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch of envelope %s (selector %s, tenant %s) rejected by %s policy: %d/%d handlers failed: %v",
		e.EnvelopeID, e.Selector, e.Tenant, e.Policy, e.Failed, e.Total, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
