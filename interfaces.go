package dscpd

import (
	"context"

	"go.aporeto.io/dscpd/collector"
	"go.aporeto.io/dscpd/monitor"
)

// Agent negotiates the DSCP policies of one association and keeps the host
// packet filter in sync with them.
type Agent interface {
	// Start prepares the packet filter and starts processing notifications.
	Start(ctx context.Context) error

	// Stop asks the agent to exit. It does not block.
	Stop()

	// Wait blocks until the agent exited and its packet filter state was
	// removed.
	Wait() error

	// Status returns the last published state of the agent.
	Status() monitor.Status

	// SetBlanketReject rejects every subsequent policy addition with code.
	// Zero disables it.
	SetBlanketReject(code collector.Status)
}
