package policy

import (
	"fmt"
	"net"
	"strconv"
)

// IPVersion is the IP version a policy applies to.
type IPVersion uint8

const (
	// IPv4 policies classify IPv4 traffic.
	IPv4 IPVersion = 4
	// IPv6 policies classify IPv6 traffic.
	IPv6 IPVersion = 6
)

// String returns the name used in rule and table identifiers.
func (v IPVersion) String() string {
	switch v {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "ipv" + strconv.Itoa(int(v))
	}
}

// Transport protocol numbers that can be rendered into packet filter rules.
const (
	ProtocolTCP uint8 = 6
	ProtocolUDP uint8 = 17
	ProtocolESP uint8 = 50
)

var transportNames = map[uint8]string{
	ProtocolTCP: "tcp",
	ProtocolUDP: "udp",
	ProtocolESP: "esp",
}

// TransportName maps a numeric transport protocol to its canonical name.
func TransportName(proto uint8) (string, bool) {
	name, ok := transportNames[proto]
	return name, ok
}

// PortRange is an inclusive destination port range.
type PortRange struct {
	Start uint16
	End   uint16
}

// String returns the range in start:end notation.
func (r *PortRange) String() string {
	return fmt.Sprintf("%d:%d", r.Start, r.End)
}

// DSCPPolicy maps a packet selector to the DSCP value that outgoing matching
// traffic must carry. A policy is never modified once decoded; replacing it
// means removing it and adding a new one under the same ID.
type DSCPPolicy struct {
	ID         uint8
	DSCP       uint8
	IPVersion  IPVersion
	DomainName string

	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   *uint16
	DstPort   *uint16
	PortRange *PortRange
	Protocol  *uint8
}

// GranularityScore counts the optional selector fields present in the policy.
// Less specific policies are applied first so that a more specific match is
// never overridden by a coarser one.
func (p *DSCPPolicy) GranularityScore() int {

	score := 0
	if p.SrcIP != nil {
		score++
	}
	if p.DstIP != nil {
		score++
	}
	if p.SrcPort != nil {
		score++
	}
	if p.DstPort != nil {
		score++
	}
	if p.PortRange != nil {
		score++
	}
	if p.Protocol != nil {
		score++
	}

	return score
}

// RequiresHostRule reports whether the policy is enforced through a host
// packet filter rule. Domain name policies are enforced elsewhere.
func (p *DSCPPolicy) RequiresHostRule() bool {
	return p.DomainName == ""
}

// HasPortSelector reports whether any port based selector is present.
func (p *DSCPPolicy) HasPortSelector() bool {
	return p.SrcPort != nil || p.DstPort != nil || p.PortRange != nil
}

// Transport returns the canonical transport name of the policy, or an empty
// string when no protocol is selected. Port selectors are only meaningful
// with tcp and udp: esp carries an SPI where the ports would be.
func (p *DSCPPolicy) Transport() (string, error) {

	if p.Protocol == nil {
		if p.HasPortSelector() {
			return "", ErrUnsupportedSelector(p.ID, "port selector without protocol")
		}
		return "", nil
	}

	name, ok := TransportName(*p.Protocol)
	if p.HasPortSelector() && *p.Protocol != ProtocolTCP && *p.Protocol != ProtocolUDP {
		return "", ErrUnsupportedSelector(p.ID, fmt.Sprintf("port selector with protocol %d", *p.Protocol))
	}

	if !ok {
		return strconv.Itoa(int(*p.Protocol)), nil
	}

	return name, nil
}

// String returns a compact description for logs.
func (p *DSCPPolicy) String() string {
	return fmt.Sprintf("policy_id=%d dscp=%d ip_version=%d score=%d", p.ID, p.DSCP, p.IPVersion, p.GranularityScore())
}
