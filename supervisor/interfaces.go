package supervisor

import (
	"context"

	"go.aporeto.io/dscpd/policy"
)

// Implementor is the interface of the packet filter implementation that
// marks outgoing traffic with the DSCP value of the matching policy.
type Implementor interface {

	// Run prepares the packet filter for the interface. It is called once
	// before any policy is applied.
	Run(ctx context.Context) error

	// Apply installs the rule of a policy. Rules of less specific policies
	// must not override the marking of more specific ones.
	Apply(p *policy.DSCPPolicy) error

	// Remove deletes the rule of a previously applied policy.
	Remove(p *policy.DSCPPolicy) error

	// FlushAll deletes the rules of every policy in a single operation.
	FlushAll() error

	// CleanUp requests the implementor to remove everything it created.
	CleanUp() error
}
