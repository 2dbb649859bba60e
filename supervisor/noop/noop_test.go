package noop

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"go.aporeto.io/dscpd/policy"
)

func u16(v uint16) *uint16 { return &v }
func u8(v uint8) *uint8    { return &v }

func TestInstance(t *testing.T) {

	Convey("Given a dry run instance", t, func() {
		i := NewInstance("wlan0")
		So(i.Run(context.Background()), ShouldBeNil)

		Convey("When I apply a policy the packet filter could express", func() {
			err := i.Apply(&policy.DSCPPolicy{ID: 1, DSCP: 46, IPVersion: policy.IPv4, Protocol: u8(policy.ProtocolUDP), DstPort: u16(5000)})

			Convey("Then it should be accepted", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When I apply a port selector without a protocol", func() {
			err := i.Apply(&policy.DSCPPolicy{ID: 2, DSCP: 46, IPVersion: policy.IPv4, DstPort: u16(5000)})

			Convey("Then it should be refused like the real implementations do", func() {
				So(policy.IsErrUnsupportedSelector(err), ShouldBeTrue)
			})
		})

		Convey("When I apply a port selector with esp", func() {
			err := i.Apply(&policy.DSCPPolicy{ID: 3, DSCP: 46, IPVersion: policy.IPv6, Protocol: u8(policy.ProtocolESP), SrcPort: u16(500)})

			Convey("Then it should be refused", func() {
				So(policy.IsErrUnsupportedSelector(err), ShouldBeTrue)
			})
		})

		Convey("When I remove and flush", func() {
			So(i.Remove(&policy.DSCPPolicy{ID: 1}), ShouldBeNil)
			So(i.FlushAll(), ShouldBeNil)
			So(i.CleanUp(), ShouldBeNil)
		})
	})
}
