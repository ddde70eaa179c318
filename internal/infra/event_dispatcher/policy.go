package eventdispatcher

import (
	"errors"
	"fmt"
	"strings"
)

// Policy decides whether handler failures turn into a dispatch error.
type Policy int

const (
	// PolicyBestEffort never reports handler failures to the caller.
	PolicyBestEffort Policy = iota
	// PolicyAnySuccess reports an error only when every handler failed.
	PolicyAnySuccess
	// PolicyAllSuccess reports an error when any handler failed.
	PolicyAllSuccess
)

func (p Policy) String() string {
	switch p {
	case PolicyBestEffort:
		return "best_effort"
	case PolicyAnySuccess:
		return "any_success"
	case PolicyAllSuccess:
		return "all_success"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best_effort", "best-effort":
		return PolicyBestEffort, nil
	case "any_success", "any-success":
		return PolicyAnySuccess, nil
	case "all_success", "all-success":
		return PolicyAllSuccess, nil
	default:
		return PolicyBestEffort, fmt.Errorf("unknown dispatch policy %q", s)
	}
}

// evaluate applies the policy to res, returning a *DispatchError on rejection.
func (p Policy) evaluate(res Result) error {
	total := len(res.Outcomes)
	failed := res.Failed()

	var reject bool
	switch p {
	case PolicyAnySuccess:
		reject = total > 0 && failed == total
	case PolicyAllSuccess:
		reject = failed > 0
	}
	if !reject {
		return nil
	}

	errs := make([]error, 0, failed)
	for _, o := range res.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}

	return &DispatchError{
		EnvelopeID: res.EnvelopeID,
		Selector:   res.Selector,
		Tenant:     res.Tenant,
		Policy:     p,
		Failed:     failed,
		Total:      total,
		Err:        errors.Join(errs...),
	}
}
