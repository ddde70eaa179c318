package eventdispatcher

import (
	"time"

	"github.com/ahrav/notification-service/internal/domain/events"
)

// Status is the terminal state of one handler invocation.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Outcome records how a single handler fared for an envelope.
type Outcome struct {
	Handler  string
	Status   Status
	Err      error
	Duration time.Duration
	// Attempts is one unless the handler is wrapped by WithRetry.
	Attempts int
}

// Result aggregates the outcomes of every handler matched by an envelope.
// Outcomes are in registration order; an envelope with no subscribers has none.
type Result struct {
	EnvelopeID string
	Selector   events.Selector
	Tenant     string
	Outcomes   []Outcome
}

// Failed counts outcomes that did not succeed.
func (r Result) Failed() int {
	var n int
	for _, o := range r.Outcomes {
		if o.Status != StatusSucceeded {
			n++
		}
	}
	return n
}

// Succeeded counts outcomes that succeeded.
func (r Result) Succeeded() int { return len(r.Outcomes) - r.Failed() }
