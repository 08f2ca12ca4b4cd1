package eligibility

import (
	"errors"
	"fmt"
)

// Reason is a machine-readable ineligibility reason
type Reason string

const (
	ReasonMalformedIdentity Reason = "malformed_identity"
	ReasonDomainMismatch    Reason = "domain_mismatch"
	ReasonContestClosed     Reason = "contest_closed"
)

var (
	ErrMalformedIdentity = errors.New("identity is missing required fields")
	ErrDomainMismatch    = errors.New("email domain is not eligible for this contest")
	ErrContestClosed     = errors.New("contest is not open")
)

// IneligibleError reports why a verification event cannot enter a contest
type IneligibleError struct {
	Reason Reason
	Detail string
}

func (e *IneligibleError) Error() string {
	if e.Detail == "" {
		return e.sentinel().Error()
	}
	return fmt.Sprintf("%s: %s", e.sentinel().Error(), e.Detail)
}

// Unwrap lets errors.Is match the sentinel for the reason
func (e *IneligibleError) Unwrap() error {
	return e.sentinel()
}

func (e *IneligibleError) sentinel() error {
	switch e.Reason {
	case ReasonMalformedIdentity:
		return ErrMalformedIdentity
	case ReasonDomainMismatch:
		return ErrDomainMismatch
	default:
		return ErrContestClosed
	}
}

func ineligible(reason Reason, format string, args ...interface{}) error {
	return &IneligibleError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the ineligibility reason from err, if any
func ReasonOf(err error) (Reason, bool) {
	var ie *IneligibleError
	if errors.As(err, &ie) {
		return ie.Reason, true
	}
	return "", false
}
