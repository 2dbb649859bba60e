package supervisor

import (
	"bytes"
	"fmt"
	"net"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"go.aporeto.io/dscpd/policy"
)

// packet is the part of an outgoing packet the marking rules look at.
type packet struct {
	version policy.IPVersion
	iface   string
	src     net.IP
	dst     net.IP
	proto   uint8
	sport   uint16
	dport   uint16
}

func (p packet) String() string {
	return fmt.Sprintf("%s %s:%d -> %s:%d proto %d", p.version, p.src, p.sport, p.dst, p.dport, p.proto)
}

// fakeIptables keeps chains in memory and evaluates them.
type fakeIptables struct {
	chains map[string][][]string
}

func newFakeIptables() *fakeIptables {
	return &fakeIptables{chains: map[string][][]string{}}
}

func chainKey(table, chain string) string {
	return table + "/" + chain
}

func (f *fakeIptables) Append(table, chain string, rulespec ...string) error {
	k := chainKey(table, chain)
	f.chains[k] = append(f.chains[k], rulespec)
	return nil
}

func (f *fakeIptables) Insert(table, chain string, pos int, rulespec ...string) error {
	k := chainKey(table, chain)
	rules := f.chains[k]
	if pos < 1 || pos > len(rules)+1 {
		return fmt.Errorf("index of insertion too big")
	}
	rules = append(rules, nil)
	copy(rules[pos:], rules[pos-1:])
	rules[pos-1] = rulespec
	f.chains[k] = rules
	return nil
}

func (f *fakeIptables) Delete(table, chain string, rulespec ...string) error {
	k := chainKey(table, chain)
	for i, r := range f.chains[k] {
		if reflect.DeepEqual(r, rulespec) {
			f.chains[k] = append(f.chains[k][:i], f.chains[k][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("bad rule (does a matching rule exist in that chain?)")
}

func (f *fakeIptables) Exists(table, chain string, rulespec ...string) (bool, error) {
	for _, r := range f.chains[chainKey(table, chain)] {
		if reflect.DeepEqual(r, rulespec) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeIptables) ListChains(table string) ([]string, error) {
	chains := []string{}
	for k := range f.chains {
		if strings.HasPrefix(k, table+"/") {
			chains = append(chains, strings.TrimPrefix(k, table+"/"))
		}
	}
	return chains, nil
}

func (f *fakeIptables) ClearChain(table, chain string) error {
	f.chains[chainKey(table, chain)] = [][]string{}
	return nil
}

func (f *fakeIptables) DeleteChain(table, chain string) error {
	delete(f.chains, chainKey(table, chain))
	return nil
}

func (f *fakeIptables) NewChain(table, chain string) error {
	return f.ClearChain(table, chain)
}

// classify returns the DSCP value of pkt after traversing the chain. The
// DSCP target does not terminate traversal, the last match wins.
func (f *fakeIptables) classify(chain string, pkt packet) uint8 {

	var dscp uint8
	for _, rule := range f.chains[chainKey("mangle", chain)] {
		if value, ok := matchRulespec(rule, pkt); ok {
			dscp = value
		}
	}
	return dscp
}

var protocolNumbers = map[string]uint8{
	"tcp": unix.IPPROTO_TCP,
	"udp": unix.IPPROTO_UDP,
	"esp": unix.IPPROTO_ESP,
}

func matchRulespec(rule []string, pkt packet) (uint8, bool) {

	var dscp uint8
	for i := 0; i < len(rule); i++ {
		arg := ""
		if i+1 < len(rule) {
			arg = rule[i+1]
		}

		switch rule[i] {
		case "-s":
			if !net.ParseIP(arg).Equal(pkt.src) {
				return 0, false
			}
		case "-d":
			if !net.ParseIP(arg).Equal(pkt.dst) {
				return 0, false
			}
		case "-p":
			proto, ok := protocolNumbers[arg]
			if !ok {
				n, _ := strconv.Atoi(arg)
				proto = uint8(n)
			}
			if proto != pkt.proto {
				return 0, false
			}
		case "--sport":
			if arg != strconv.Itoa(int(pkt.sport)) {
				return 0, false
			}
		case "--dport":
			if arg != strconv.Itoa(int(pkt.dport)) {
				return 0, false
			}
		case "--dports":
			bounds := strings.Split(arg, ":")
			start, _ := strconv.Atoi(bounds[0])
			end, _ := strconv.Atoi(bounds[1])
			if int(pkt.dport) < start || int(pkt.dport) > end {
				return 0, false
			}
		case "--set-dscp":
			n, _ := strconv.Atoi(arg)
			dscp = uint8(n)
		default:
			continue
		}
		i++
	}

	return dscp, true
}

// fakeTable is a table with its single chain and rules.
type fakeTable struct {
	order int
	table *nftables.Table
	chain *nftables.Chain
	rules []*nftables.Rule
}

// fakeNftables batches operations until Flush, like a netlink connection.
type fakeNftables struct {
	tables     map[string]*fakeTable
	pending    []func() error
	flushes    int
	registered int
}

func newFakeNftables() *fakeNftables {
	return &fakeNftables{tables: map[string]*fakeTable{}}
}

func tableKey(t *nftables.Table) string {
	return fmt.Sprintf("%d/%s", t.Family, t.Name)
}

func (f *fakeNftables) AddTable(t *nftables.Table) *nftables.Table {
	f.pending = append(f.pending, func() error {
		if _, ok := f.tables[tableKey(t)]; !ok {
			f.registered++
			f.tables[tableKey(t)] = &fakeTable{order: f.registered, table: t}
		}
		return nil
	})
	return t
}

func (f *fakeNftables) AddChain(c *nftables.Chain) *nftables.Chain {
	f.pending = append(f.pending, func() error {
		ft, ok := f.tables[tableKey(c.Table)]
		if !ok {
			return fmt.Errorf("no such file or directory")
		}
		ft.chain = c
		return nil
	})
	return c
}

func (f *fakeNftables) AddRule(r *nftables.Rule) *nftables.Rule {
	f.pending = append(f.pending, func() error {
		ft, ok := f.tables[tableKey(r.Table)]
		if !ok {
			return fmt.Errorf("no such file or directory")
		}
		ft.rules = append(ft.rules, r)
		return nil
	})
	return r
}

func (f *fakeNftables) DelTable(t *nftables.Table) {
	f.pending = append(f.pending, func() error {
		if _, ok := f.tables[tableKey(t)]; !ok {
			return fmt.Errorf("no such file or directory")
		}
		delete(f.tables, tableKey(t))
		return nil
	})
}

func (f *fakeNftables) ListTables() ([]*nftables.Table, error) {
	tables := []*nftables.Table{}
	for _, ft := range f.tables {
		tables = append(tables, ft.table)
	}
	return tables, nil
}

func (f *fakeNftables) Flush() error {
	f.flushes++
	ops := f.pending
	f.pending = nil

	var result error
	for _, op := range ops {
		if err := op(); err != nil && result == nil {
			result = err
		}
	}
	return result
}

// classify runs pkt through the output hook: every base chain of the packet
// family in priority order, chains of equal priority in registration order.
func (f *fakeNftables) classify(pkt packet) uint8 {

	family := nftables.TableFamilyIPv4
	if pkt.version == policy.IPv6 {
		family = nftables.TableFamilyIPv6
	}

	chains := []*fakeTable{}
	for _, ft := range f.tables {
		if ft.table.Family == family && ft.chain != nil {
			chains = append(chains, ft)
		}
	}
	sort.Slice(chains, func(i, j int) bool {
		return chains[i].order < chains[j].order
	})
	sort.SliceStable(chains, func(i, j int) bool {
		return *chains[i].chain.Priority < *chains[j].chain.Priority
	})

	network, transport := headers(pkt)
	for _, ft := range chains {
		for _, r := range ft.rules {
			evalExprs(r.Exprs, pkt, network, transport)
		}
	}

	if pkt.version == policy.IPv4 {
		return network[1] >> 2
	}
	return (network[0]&0x0f)<<2 | network[1]>>6
}

// headers builds the network and transport headers of pkt with a zero
// traffic class.
func headers(pkt packet) ([]byte, []byte) {

	var network []byte
	if pkt.version == policy.IPv4 {
		network = make([]byte, 20)
		network[0] = 0x45
		network[9] = pkt.proto
		copy(network[12:16], pkt.src.To4())
		copy(network[16:20], pkt.dst.To4())
	} else {
		network = make([]byte, 40)
		network[0] = 0x60
		network[6] = pkt.proto
		copy(network[8:24], pkt.src.To16())
		copy(network[24:40], pkt.dst.To16())
	}

	transport := []byte{byte(pkt.sport >> 8), byte(pkt.sport), byte(pkt.dport >> 8), byte(pkt.dport)}

	return network, transport
}

// evalExprs interprets a rule. It stops at the first expression that does
// not match.
func evalExprs(exprs []expr.Any, pkt packet, network, transport []byte) {

	regs := map[uint32][]byte{}
	for _, e := range exprs {
		switch x := e.(type) {
		case *expr.Meta:
			switch x.Key {
			case expr.MetaKeyOIFNAME:
				b := make([]byte, unix.IFNAMSIZ)
				copy(b, pkt.iface)
				regs[x.Register] = b
			case expr.MetaKeyL4PROTO:
				regs[x.Register] = []byte{pkt.proto}
			}
		case *expr.Payload:
			buf := network
			if x.Base == expr.PayloadBaseTransportHeader {
				buf = transport
			}
			if x.OperationType == expr.PayloadWrite {
				copy(buf[x.Offset:x.Offset+x.Len], regs[x.SourceRegister])
				continue
			}
			regs[x.DestRegister] = append([]byte{}, buf[x.Offset:x.Offset+x.Len]...)
		case *expr.Cmp:
			if !bytes.Equal(regs[x.Register], x.Data) {
				return
			}
		case *expr.Range:
			v := regs[x.Register]
			if bytes.Compare(v, x.FromData) < 0 || bytes.Compare(v, x.ToData) > 0 {
				return
			}
		case *expr.Bitwise:
			src := regs[x.SourceRegister]
			out := make([]byte, x.Len)
			for i := range out {
				out[i] = src[i]&x.Mask[i] ^ x.Xor[i]
			}
			regs[x.DestRegister] = out
		}
	}
}
