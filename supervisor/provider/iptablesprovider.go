package provider

import "github.com/coreos/go-iptables/iptables"

// IptablesProvider is an abstraction of all the methods an implementation of userspace
// iptables need to provide.
type IptablesProvider interface {
	// Append apends a rule to chain of table
	Append(table, chain string, rulespec ...string) error
	// Insert inserts a rule to a chain of table at the required pos
	Insert(table, chain string, pos int, rulespec ...string) error
	// Delete deletes a rule of a chain in the given table
	Delete(table, chain string, rulespec ...string) error
	// Exists checks if a rule is present in a chain of table
	Exists(table, chain string, rulespec ...string) (bool, error)
	// ListChains lists all the chains associated with a table
	ListChains(table string) ([]string, error)
	// ClearChain flushes a chain in a table, creating it if needed
	ClearChain(table, chain string) error
	// DeleteChain deletes a chain in the table. There should be no references to this chain
	DeleteChain(table, chain string) error
	// NewChain creates a new chain
	NewChain(table, chain string) error
}

// NewGoIPTablesProviderV4 returns an IptablesProvider interface based on the go-iptables
// external package, bound to iptables.
func NewGoIPTablesProviderV4() (IptablesProvider, error) {
	return iptables.NewWithProtocol(iptables.ProtocolIPv4)
}

// NewGoIPTablesProviderV6 returns an IptablesProvider interface based on the go-iptables
// external package, bound to ip6tables.
func NewGoIPTablesProviderV6() (IptablesProvider, error) {
	return iptables.NewWithProtocol(iptables.ProtocolIPv6)
}
