package constants

const (
	// DefaultCtrlInterfaceDir is where the supplicant exposes its per interface
	// control sockets
	DefaultCtrlInterfaceDir = "/var/run/wpa_supplicant"

	// DefaultCtrlSocketType is unixgram
	DefaultCtrlSocketType = "unixgram"
)

// ImplementationType defines the type of packet filter implementation used
// to mark traffic.
type ImplementationType int

const (
	// IPTables mandates an ordered rule list in the iptables mangle table
	IPTables ImplementationType = iota
	// NFTables mandates an isolated nftables table per policy
	NFTables
	// Noop installs nothing. Useful on hosts without packet filter access.
	Noop
)

var implementationNames = map[ImplementationType]string{
	IPTables: "iptables",
	NFTables: "nftables",
	Noop:     "noop",
}

// String returns the name of the implementation.
func (i ImplementationType) String() string {
	if name, ok := implementationNames[i]; ok {
		return name
	}
	return "unknown"
}

// ParseImplementationType returns the implementation with the given name.
func ParseImplementationType(name string) (ImplementationType, bool) {
	for k, v := range implementationNames {
		if v == name {
			return k, true
		}
	}
	return 0, false
}

const (
	// MangleTable is the iptables table holding the marking rules
	MangleTable = "mangle"
	// OutputChain is the built-in chain jumping to the policy chain
	OutputChain = "OUTPUT"
	// ChainPrefix prefixes the per interface policy chain
	ChainPrefix = "DSCP-"
	// NFTablePrefix prefixes the per policy nftables tables
	NFTablePrefix = "dscp_"
	// NFChainName is the chain holding the rule of a per policy table
	NFChainName = "output"
)

// DefaultMaxSelectorLength bounds the rendered selector of a single rule.
const DefaultMaxSelectorLength = 512
