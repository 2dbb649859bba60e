package policy

import (
	"fmt"
	"net"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDecodePolicy(t *testing.T) {

	Convey("Given the default decode options", t, func() {
		opts := DefaultDecodeOptions()

		Convey("When I decode a minimal add", func() {
			p, err := DecodePolicy(map[string]string{
				"policy_id":  "1",
				"dscp":       "46",
				"ip_version": "4",
			}, opts)

			Convey("Then I should get a policy with no selectors", func() {
				So(err, ShouldBeNil)
				So(p.ID, ShouldEqual, 1)
				So(p.DSCP, ShouldEqual, 46)
				So(p.IPVersion, ShouldEqual, IPv4)
				So(p.GranularityScore(), ShouldEqual, 0)
				So(p.RequiresHostRule(), ShouldBeTrue)
			})
		})

		Convey("When I decode a fully specified IPv6 add", func() {
			p, err := DecodePolicy(map[string]string{
				"policy_id":  "9",
				"dscp":       "10",
				"ip_version": "6",
				"src_ip":     "2001:db8::1",
				"dst_ip":     "2001:db8::2",
				"src_port":   "5000",
				"dst_port":   "443",
				"start_port": "100",
				"end_port":   "200",
				"protocol":   "6",
			}, opts)

			Convey("Then every selector should be present", func() {
				So(err, ShouldBeNil)
				So(p.SrcIP.Equal(net.ParseIP("2001:db8::1")), ShouldBeTrue)
				So(*p.SrcPort, ShouldEqual, 5000)
				So(*p.DstPort, ShouldEqual, 443)
				So(p.PortRange.String(), ShouldEqual, "100:200")
				So(*p.Protocol, ShouldEqual, ProtocolTCP)
				So(p.GranularityScore(), ShouldEqual, 6)
			})
		})

		Convey("When I decode a domain name policy", func() {
			p, err := DecodePolicy(map[string]string{
				"policy_id":   "7",
				"dscp":        "10",
				"ip_version":  "4",
				"domain_name": "example.com",
			}, opts)

			Convey("Then it should not require a host rule", func() {
				So(err, ShouldBeNil)
				So(p.DomainName, ShouldEqual, "example.com")
				So(p.RequiresHostRule(), ShouldBeFalse)
			})
		})

		bad := []map[string]string{
			{"dscp": "1", "ip_version": "4"},
			{"policy_id": "300", "dscp": "1", "ip_version": "4"},
			{"policy_id": "2", "ip_version": "4"},
			{"policy_id": "2", "dscp": "64", "ip_version": "4"},
			{"policy_id": "2", "dscp": "1"},
			{"policy_id": "2", "dscp": "1", "ip_version": "5"},
			{"policy_id": "2", "dscp": "1", "ip_version": "4", "src_ip": "2001:db8::1"},
			{"policy_id": "2", "dscp": "1", "ip_version": "6", "dst_ip": "10.0.0.1"},
			{"policy_id": "2", "dscp": "1", "ip_version": "4", "dst_ip": "not-an-ip"},
			{"policy_id": "2", "dscp": "1", "ip_version": "4", "start_port": "10"},
			{"policy_id": "2", "dscp": "1", "ip_version": "4", "start_port": "20", "end_port": "10"},
			{"policy_id": "2", "dscp": "1", "ip_version": "4", "dst_port": "70000"},
			{"policy_id": "2", "dscp": "1", "ip_version": "4", "protocol": "tcp"},
			{"policy_id": "2", "dscp": "1", "ip_version": "4", "domain_name": ""},
		}
		for i, attrs := range bad {
			attrs := attrs
			Convey(fmt.Sprintf("When I decode malformed payload %d", i), func() {
				p, err := DecodePolicy(attrs, opts)

				Convey("Then I should get a decode error", func() {
					So(p, ShouldBeNil)
					So(IsErrDecode(err), ShouldBeTrue)
				})
			})
		}
	})

	Convey("Given decode options without optional features", t, func() {
		opts := DecodeOptions{}

		Convey("When I decode a policy with a domain name", func() {
			_, err := DecodePolicy(map[string]string{
				"policy_id": "1", "dscp": "1", "ip_version": "4", "domain_name": "example.com",
			}, opts)
			So(IsErrDecode(err), ShouldBeTrue)
		})

		Convey("When I decode a policy with a port range", func() {
			_, err := DecodePolicy(map[string]string{
				"policy_id": "1", "dscp": "1", "ip_version": "4", "start_port": "1", "end_port": "2",
			}, opts)
			So(IsErrDecode(err), ShouldBeTrue)
		})
	})
}

func TestTransport(t *testing.T) {

	Convey("Given policies with different protocol selectors", t, func() {

		Convey("Known protocols should map to their names", func() {
			for proto, name := range map[uint8]string{6: "tcp", 17: "udp", 50: "esp"} {
				p := &DSCPPolicy{Protocol: u8(proto)}
				got, err := p.Transport()
				So(err, ShouldBeNil)
				So(got, ShouldEqual, name)
			}
		})

		Convey("Ports should be accepted with tcp and udp", func() {
			for _, proto := range []uint8{ProtocolTCP, ProtocolUDP} {
				p := &DSCPPolicy{Protocol: u8(proto), DstPort: u16(80)}
				_, err := p.Transport()
				So(err, ShouldBeNil)
			}
		})

		Convey("Ports with esp should be unsupported", func() {
			p := &DSCPPolicy{ID: 4, Protocol: u8(ProtocolESP), SrcPort: u16(500)}
			_, err := p.Transport()
			So(IsErrUnsupportedSelector(err), ShouldBeTrue)
		})

		Convey("An unknown protocol without ports should render numerically", func() {
			p := &DSCPPolicy{Protocol: u8(47)}
			got, err := p.Transport()
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "47")
		})

		Convey("An unknown protocol with ports should be unsupported", func() {
			p := &DSCPPolicy{Protocol: u8(47), PortRange: &PortRange{Start: 1, End: 5}}
			_, err := p.Transport()
			So(IsErrUnsupportedSelector(err), ShouldBeTrue)
		})

		Convey("Ports without a protocol should be unsupported", func() {
			p := &DSCPPolicy{SrcPort: u16(53)}
			_, err := p.Transport()
			So(IsErrUnsupportedSelector(err), ShouldBeTrue)
		})
	})
}

func TestPolicyErrors(t *testing.T) {

	Convey("Creating error objects using their initializers for", t, func() {

		Convey("ErrDecode", func() {
			err := ErrDecode("4", "missing dscp")
			So(err.Error(), ShouldEqual, fmt.Sprintf("%s (ID: 4): %s: missing dscp", DecodeFailed, policyErrorDescription[DecodeFailed]))
			So(IsErrDecode(err), ShouldBeTrue)
			So(IsErrCapacity(err), ShouldBeFalse)
		})

		Convey("ErrCapacity wrapped by pkg/errors", func() {
			err := errors.Wrap(ErrCapacity(3, "selector too long"), "apply")
			So(IsErrCapacity(err), ShouldBeTrue)
			So(IsErrDecode(err), ShouldBeFalse)
		})

		Convey("ErrAllocation", func() {
			So(IsErrAllocation(ErrAllocation(1, "table full")), ShouldBeTrue)
			So(IsErrAllocation(fmt.Errorf("other")), ShouldBeFalse)
		})
	})
}
