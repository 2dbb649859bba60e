package policy

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Attribute keys carried by policy notifications.
const (
	AttrPolicyID   = "policy_id"
	AttrDSCP       = "dscp"
	AttrIPVersion  = "ip_version"
	AttrDomainName = "domain_name"
	AttrStartPort  = "start_port"
	AttrEndPort    = "end_port"
	AttrSrcIP      = "src_ip"
	AttrDstIP      = "dst_ip"
	AttrSrcPort    = "src_port"
	AttrDstPort    = "dst_port"
	AttrProtocol   = "protocol"
)

// MaxDSCP is the largest value the 6-bit DSCP field can hold.
const MaxDSCP = 63

// DecodeOptions gates the optional selector fields the decoder accepts. A
// gated field present in a payload while its feature is disabled fails the
// decode.
type DecodeOptions struct {
	DomainName bool
	PortRange  bool
}

// DefaultDecodeOptions accepts every optional field.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		DomainName: true,
		PortRange:  true,
	}
}

// DecodePolicyID extracts the mandatory policy_id attribute.
func DecodePolicyID(attrs map[string]string) (uint8, error) {

	raw, ok := attrs[AttrPolicyID]
	if !ok {
		return 0, ErrDecode("", "missing policy_id")
	}

	id, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, ErrDecode(raw, fmt.Sprintf("invalid policy_id: %s", err))
	}

	return uint8(id), nil
}

// DecodePolicy builds a policy from the attributes of an add notification.
func DecodePolicy(attrs map[string]string, opts DecodeOptions) (*DSCPPolicy, error) {

	id, err := DecodePolicyID(attrs)
	if err != nil {
		return nil, err
	}
	rawID := attrs[AttrPolicyID]

	p := &DSCPPolicy{ID: id}

	dscp, ok := attrs[AttrDSCP]
	if !ok {
		return nil, ErrDecode(rawID, "missing dscp")
	}
	v, err := strconv.ParseUint(dscp, 10, 8)
	if err != nil || v > MaxDSCP {
		return nil, ErrDecode(rawID, fmt.Sprintf("invalid dscp %q", dscp))
	}
	p.DSCP = uint8(v)

	version, ok := attrs[AttrIPVersion]
	if !ok {
		return nil, ErrDecode(rawID, "missing ip_version")
	}
	switch version {
	case "4":
		p.IPVersion = IPv4
	case "6":
		p.IPVersion = IPv6
	default:
		return nil, ErrDecode(rawID, fmt.Sprintf("invalid ip_version %q", version))
	}

	if name, ok := attrs[AttrDomainName]; ok {
		if !opts.DomainName {
			return nil, ErrDecode(rawID, "domain_name not supported")
		}
		if name == "" {
			return nil, ErrDecode(rawID, "empty domain_name")
		}
		p.DomainName = name
	}

	start, hasStart := attrs[AttrStartPort]
	end, hasEnd := attrs[AttrEndPort]
	if hasStart || hasEnd {
		if !opts.PortRange {
			return nil, ErrDecode(rawID, "port range not supported")
		}
		if !hasStart || !hasEnd {
			return nil, ErrDecode(rawID, "port range requires both start_port and end_port")
		}
		s, err := parsePort(start)
		if err != nil {
			return nil, ErrDecode(rawID, fmt.Sprintf("invalid start_port: %s", err))
		}
		e, err := parsePort(end)
		if err != nil {
			return nil, ErrDecode(rawID, fmt.Sprintf("invalid end_port: %s", err))
		}
		if s > e {
			return nil, ErrDecode(rawID, fmt.Sprintf("start_port %d above end_port %d", s, e))
		}
		p.PortRange = &PortRange{Start: s, End: e}
	}

	if raw, ok := attrs[AttrSrcIP]; ok {
		if p.SrcIP, err = parseAddress(raw, p.IPVersion); err != nil {
			return nil, ErrDecode(rawID, fmt.Sprintf("invalid src_ip: %s", err))
		}
	}

	if raw, ok := attrs[AttrDstIP]; ok {
		if p.DstIP, err = parseAddress(raw, p.IPVersion); err != nil {
			return nil, ErrDecode(rawID, fmt.Sprintf("invalid dst_ip: %s", err))
		}
	}

	if raw, ok := attrs[AttrSrcPort]; ok {
		port, err := parsePort(raw)
		if err != nil {
			return nil, ErrDecode(rawID, fmt.Sprintf("invalid src_port: %s", err))
		}
		p.SrcPort = &port
	}

	if raw, ok := attrs[AttrDstPort]; ok {
		port, err := parsePort(raw)
		if err != nil {
			return nil, ErrDecode(rawID, fmt.Sprintf("invalid dst_port: %s", err))
		}
		p.DstPort = &port
	}

	if raw, ok := attrs[AttrProtocol]; ok {
		proto, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return nil, ErrDecode(rawID, fmt.Sprintf("invalid protocol: %s", err))
		}
		pr := uint8(proto)
		p.Protocol = &pr
	}

	return p, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func parseAddress(s string, version IPVersion) (net.IP, error) {

	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("%q is not an IP address", s)
	}

	isV6 := strings.Contains(s, ":")
	switch {
	case version == IPv4 && isV6:
		return nil, fmt.Errorf("%q is not an IPv4 address", s)
	case version == IPv6 && !isV6:
		return nil, fmt.Errorf("%q is not an IPv6 address", s)
	}

	if version == IPv4 {
		return ip.To4(), nil
	}
	return ip.To16(), nil
}
