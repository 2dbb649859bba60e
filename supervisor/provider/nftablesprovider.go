package provider

import "github.com/google/nftables"

// NftablesProvider is an abstraction of the nftables netlink methods the
// isolated table implementation needs. Changes are batched by the
// implementation and only sent to the kernel on Flush.
type NftablesProvider interface {
	// AddTable queues the creation of a table
	AddTable(t *nftables.Table) *nftables.Table
	// AddChain queues the creation of a chain
	AddChain(c *nftables.Chain) *nftables.Chain
	// AddRule queues the creation of a rule
	AddRule(r *nftables.Rule) *nftables.Rule
	// DelTable queues the deletion of a table with all its chains and rules
	DelTable(t *nftables.Table)
	// ListTables returns the tables currently present in the kernel
	ListTables() ([]*nftables.Table, error)
	// Flush sends all queued changes as a single batch
	Flush() error
}

// NewNftablesProvider returns an NftablesProvider based on the google/nftables
// netlink connection.
func NewNftablesProvider() (NftablesProvider, error) {
	return nftables.New()
}
