package policy

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorReason is the reason for an error
type ErrorReason string

const (
	// DecodeFailed error reason
	DecodeFailed ErrorReason = "DecodeFailed"
	// CapacityExceeded error reason
	CapacityExceeded ErrorReason = "CapacityExceeded"
	// AllocationFailed error reason
	AllocationFailed ErrorReason = "AllocationFailed"
	// UnsupportedSelector error reason
	UnsupportedSelector ErrorReason = "UnsupportedSelector"
)

var policyErrorDescription = map[ErrorReason]string{
	DecodeFailed:        "malformed or incomplete policy attributes",
	CapacityExceeded:    "bounded capacity exceeded",
	AllocationFailed:    "unable to allocate policy",
	UnsupportedSelector: "selector cannot be expressed as a packet filter rule",
}

// Error is a specific error type for policy handling
type Error struct {
	policyID string
	reason   ErrorReason
	detail   string
}

func (e *Error) Error() string {
	desc, ok := policyErrorDescription[e.reason]
	var detail string
	if e.detail != "" {
		detail = ": " + e.detail
	}
	if !ok {
		return fmt.Sprintf("%s (ID: %s)%s", e.reason, e.policyID, detail)
	}
	return fmt.Sprintf("%s (ID: %s): %s%s", e.reason, e.policyID, desc, detail)
}

func newError(reason ErrorReason, id string, detail string) error {
	return &Error{
		policyID: id,
		reason:   reason,
		detail:   detail,
	}
}

// ErrDecode creates a new decode error. The id is the raw policy_id value,
// possibly empty when it was not part of the payload.
func ErrDecode(id string, detail string) error {
	return newError(DecodeFailed, id, detail)
}

// ErrCapacity creates a new capacity error
func ErrCapacity(id uint8, detail string) error {
	return newError(CapacityExceeded, fmt.Sprintf("%d", id), detail)
}

// ErrAllocation creates a new allocation error
func ErrAllocation(id uint8, detail string) error {
	return newError(AllocationFailed, fmt.Sprintf("%d", id), detail)
}

// ErrUnsupportedSelector creates a new unsupported selector error
func ErrUnsupportedSelector(id uint8, detail string) error {
	return newError(UnsupportedSelector, fmt.Sprintf("%d", id), detail)
}

func reasonOf(err error) (ErrorReason, bool) {
	switch t := errors.Cause(err).(type) {
	case *Error:
		return t.reason, true
	default:
		return "", false
	}
}

// IsErrDecode checks if this error is a decode error
func IsErrDecode(err error) bool {
	r, ok := reasonOf(err)
	return ok && r == DecodeFailed
}

// IsErrCapacity checks if this error is a capacity error
func IsErrCapacity(err error) bool {
	r, ok := reasonOf(err)
	return ok && r == CapacityExceeded
}

// IsErrAllocation checks if this error is an allocation error
func IsErrAllocation(err error) bool {
	r, ok := reasonOf(err)
	return ok && r == AllocationFailed
}

// IsErrUnsupportedSelector checks if this error is an unsupported selector error
func IsErrUnsupportedSelector(err error) bool {
	r, ok := reasonOf(err)
	return ok && r == UnsupportedSelector
}
