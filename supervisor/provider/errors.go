package provider

import (
	"fmt"

	"github.com/pkg/errors"
)

// ExternalToolError reports that the packet filter refused or failed an
// operation. The wrapped error is the one returned by iptables or netlink.
type ExternalToolError struct {
	Op  string
	Err error
}

func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("packet filter %s failed: %s", e.Op, e.Err)
}

// Unwrap returns the error of the underlying tool.
func (e *ExternalToolError) Unwrap() error {
	return e.Err
}

// ErrExternalTool wraps err as an ExternalToolError. A nil err stays nil.
func ErrExternalTool(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalToolError{Op: op, Err: err}
}

// IsErrExternalTool checks if this error, or any error it wraps, is an
// ExternalToolError.
func IsErrExternalTool(err error) bool {
	var target *ExternalToolError
	return errors.As(err, &target)
}
