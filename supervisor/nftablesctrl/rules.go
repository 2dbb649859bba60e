package nftablesctrl

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"go.aporeto.io/dscpd/policy"
)

const reg = unix.NFT_REG_1

// ipv4ChecksumOffset is the offset of the header checksum in an IPv4 header.
const ipv4ChecksumOffset = 10

type addressOffsets struct {
	src uint32
	dst uint32
	len uint32
}

var networkHeader = map[policy.IPVersion]addressOffsets{
	policy.IPv4: {src: 12, dst: 16, len: 4},
	policy.IPv6: {src: 8, dst: 24, len: 16},
}

var familyKeyword = map[policy.IPVersion]string{
	policy.IPv4: "ip",
	policy.IPv6: "ip6",
}

// ifname returns the interface name in the zero padded form the kernel
// compares oifname against.
func ifname(n string) []byte {
	b := make([]byte, unix.IFNAMSIZ)
	copy(b, n)
	return b
}

func binaryPort(port uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, port)
	return b
}

// ruleExprs builds the match-and-mark expressions of p.
func ruleExprs(iface string, p *policy.DSCPPolicy) ([]expr.Any, error) {

	offsets, ok := networkHeader[p.IPVersion]
	if !ok {
		return nil, fmt.Errorf("unsupported ip version %d", p.IPVersion)
	}

	exprs := []expr.Any{
		&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: reg},
		&expr.Cmp{Op: expr.CmpOpEq, Register: reg, Data: ifname(iface)},
	}

	if p.SrcIP != nil {
		exprs = append(exprs, addressMatch(offsets.src, offsets.len, p.SrcIP, p.IPVersion)...)
	}

	if p.DstIP != nil {
		exprs = append(exprs, addressMatch(offsets.dst, offsets.len, p.DstIP, p.IPVersion)...)
	}

	if p.Protocol != nil {
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: reg},
			&expr.Cmp{Op: expr.CmpOpEq, Register: reg, Data: []byte{*p.Protocol}},
		)
	}

	if p.SrcPort != nil {
		exprs = append(exprs, transportPort(0)...)
		exprs = append(exprs, &expr.Cmp{Op: expr.CmpOpEq, Register: reg, Data: binaryPort(*p.SrcPort)})
	}

	if p.DstPort != nil {
		exprs = append(exprs, transportPort(2)...)
		exprs = append(exprs, &expr.Cmp{Op: expr.CmpOpEq, Register: reg, Data: binaryPort(*p.DstPort)})
	}

	if p.PortRange != nil {
		exprs = append(exprs, transportPort(2)...)
		exprs = append(exprs, &expr.Range{
			Op:       expr.CmpOpEq,
			Register: reg,
			FromData: binaryPort(p.PortRange.Start),
			ToData:   binaryPort(p.PortRange.End),
		})
	}

	return append(exprs, dscpRewrite(p.IPVersion, p.DSCP)...), nil
}

func addressMatch(offset, length uint32, ip []byte, v policy.IPVersion) []expr.Any {

	data := []byte(ip)
	if v == policy.IPv4 && len(data) == 16 {
		data = data[12:]
	}

	return []expr.Any{
		&expr.Payload{
			DestRegister: reg,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       offset,
			Len:          length,
		},
		&expr.Cmp{Op: expr.CmpOpEq, Register: reg, Data: data},
	}
}

func transportPort(offset uint32) []expr.Any {
	return []expr.Any{
		&expr.Payload{
			DestRegister: reg,
			Base:         expr.PayloadBaseTransportHeader,
			Offset:       offset,
			Len:          2,
		},
	}
}

// dscpRewrite replaces the DSCP bits of the traffic class while keeping the
// ECN bits and, for IPv6, the version and flow label bits.
func dscpRewrite(v policy.IPVersion, dscp uint8) []expr.Any {

	if v == policy.IPv4 {
		return []expr.Any{
			&expr.Payload{DestRegister: reg, Base: expr.PayloadBaseNetworkHeader, Offset: 1, Len: 1},
			&expr.Bitwise{SourceRegister: reg, DestRegister: reg, Len: 1, Mask: []byte{0x03}, Xor: []byte{dscp << 2}},
			&expr.Payload{
				OperationType:  expr.PayloadWrite,
				SourceRegister: reg,
				Base:           expr.PayloadBaseNetworkHeader,
				Offset:         1,
				Len:            1,
				CsumType:       expr.CsumTypeInet,
				CsumOffset:     ipv4ChecksumOffset,
			},
		}
	}

	return []expr.Any{
		&expr.Payload{DestRegister: reg, Base: expr.PayloadBaseNetworkHeader, Offset: 0, Len: 2},
		&expr.Bitwise{SourceRegister: reg, DestRegister: reg, Len: 2, Mask: []byte{0xf0, 0x3f}, Xor: []byte{dscp >> 2, (dscp & 0x03) << 6}},
		&expr.Payload{
			OperationType:  expr.PayloadWrite,
			SourceRegister: reg,
			Base:           expr.PayloadBaseNetworkHeader,
			Offset:         0,
			Len:            2,
		},
	}
}

// describe renders p in nft syntax. The text is logged and bounded by the
// selector length limit.
func describe(iface string, p *policy.DSCPPolicy, transport string) string {

	family := familyKeyword[p.IPVersion]
	parts := []string{fmt.Sprintf("oifname %q", iface)}

	if p.SrcIP != nil {
		parts = append(parts, family+" saddr "+p.SrcIP.String())
	}
	if p.DstIP != nil {
		parts = append(parts, family+" daddr "+p.DstIP.String())
	}
	if transport != "" {
		parts = append(parts, "meta l4proto "+transport)
	}
	if p.SrcPort != nil {
		parts = append(parts, fmt.Sprintf("th sport %d", *p.SrcPort))
	}
	if p.DstPort != nil {
		parts = append(parts, fmt.Sprintf("th dport %d", *p.DstPort))
	}
	if p.PortRange != nil {
		parts = append(parts, fmt.Sprintf("th dport %d-%d", p.PortRange.Start, p.PortRange.End))
	}

	parts = append(parts, fmt.Sprintf("%s dscp set %d", family, p.DSCP))

	return strings.Join(parts, " ")
}
