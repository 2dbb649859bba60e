package nftablesctrl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/nftables"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"go.aporeto.io/dscpd/constants"
	"go.aporeto.io/dscpd/policy"
	"go.aporeto.io/dscpd/supervisor/provider"
)

var families = map[policy.IPVersion]nftables.TableFamily{
	policy.IPv4: nftables.TableFamilyIPv4,
	policy.IPv6: nftables.TableFamilyIPv6,
}

// scoreStride separates the priorities of two consecutive scores. Chains of
// the same score share a stride and are ordered by the insertion sequence.
const scoreStride = 1 << 16

// Instance is the isolated group implementation. Every policy owns a table
// with a single base chain whose priority grows with the policy score, so
// the rewrite of the most specific match runs last. Within a score a newer
// chain runs before the older ones, the way a rule inserted in front of its
// peers does in the iptables chain.
type Instance struct {
	iface             string
	maxSelectorLength int
	nft               provider.NftablesProvider

	seq       int
	installed map[string]struct{}
}

// NewInstance creates a new nftables controller instance for the given
// interface on top of a netlink connection.
func NewInstance(iface string, maxSelectorLength int) (*Instance, error) {

	nft, err := provider.NewNftablesProvider()
	if err != nil {
		return nil, errors.Wrap(err, "unable to initialize nftables provider")
	}

	return NewInstanceWithProvider(iface, maxSelectorLength, nft), nil
}

// NewInstanceWithProvider creates an instance on top of the given provider.
func NewInstanceWithProvider(iface string, maxSelectorLength int, nft provider.NftablesProvider) *Instance {

	if maxSelectorLength <= 0 {
		maxSelectorLength = constants.DefaultMaxSelectorLength
	}

	return &Instance{
		iface:             iface,
		maxSelectorLength: maxSelectorLength,
		nft:               nft,
		installed:         map[string]struct{}{},
	}
}

// TableName returns the name of the table owned by a policy.
func TableName(iface string, id uint8, v policy.IPVersion) string {
	return constants.NFTablePrefix + iface + "_" + strconv.Itoa(int(id)) + "_" + v.String()
}

// ChainPriority returns the priority of the chain of a policy with the given
// score installed as the seq-th chain. A lower priority runs first.
func ChainPriority(score int, seq int) *nftables.ChainPriority {
	return nftables.ChainPriorityRef(*nftables.ChainPriorityMangle + nftables.ChainPriority(score*scoreStride-seq))
}

// Run removes the tables a previous run may have left behind.
func (i *Instance) Run(ctx context.Context) error {

	if err := i.FlushAll(); err != nil {
		return err
	}

	zap.L().Debug("Started the nftables controller", zap.String("interface", i.iface))

	return nil
}

// Apply creates the table, chain and rule of p in a single batch.
func (i *Instance) Apply(p *policy.DSCPPolicy) error {

	transport, err := p.Transport()
	if err != nil {
		return err
	}

	text := describe(i.iface, p, transport)
	if len(text) > i.maxSelectorLength {
		return policy.ErrCapacity(p.ID, fmt.Sprintf("rule of %d bytes exceeds %d", len(text), i.maxSelectorLength))
	}

	family, ok := families[p.IPVersion]
	if !ok {
		return fmt.Errorf("unsupported ip version %d", p.IPVersion)
	}

	exprs, err := ruleExprs(i.iface, p)
	if err != nil {
		return err
	}

	if len(i.installed) == 0 {
		i.seq = 0
	}
	if i.seq >= scoreStride-1 {
		return policy.ErrCapacity(p.ID, "chain priorities exhausted")
	}

	name := TableName(i.iface, p.ID, p.IPVersion)

	table := i.nft.AddTable(&nftables.Table{
		Name:   name,
		Family: family,
	})

	chain := i.nft.AddChain(&nftables.Chain{
		Name:     constants.NFChainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookOutput,
		Priority: ChainPriority(p.GranularityScore(), i.seq+1),
	})

	i.nft.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: exprs,
	})

	if err := i.nft.Flush(); err != nil {
		return provider.ErrExternalTool("add table "+name, err)
	}

	i.seq++
	i.installed[name] = struct{}{}

	zap.L().Debug("Installed policy table",
		zap.Uint8("policyID", p.ID),
		zap.String("table", name),
		zap.String("rule", text),
	)

	return nil
}

// Remove deletes the table of p with its chain and rule.
func (i *Instance) Remove(p *policy.DSCPPolicy) error {

	family, ok := families[p.IPVersion]
	if !ok {
		return fmt.Errorf("unsupported ip version %d", p.IPVersion)
	}

	name := TableName(i.iface, p.ID, p.IPVersion)
	i.nft.DelTable(&nftables.Table{
		Name:   name,
		Family: family,
	})

	if err := i.nft.Flush(); err != nil {
		return provider.ErrExternalTool("delete table "+name, err)
	}

	delete(i.installed, name)

	return nil
}

// FlushAll deletes every policy table of the interface in one batch.
func (i *Instance) FlushAll() error {

	tables, err := i.nft.ListTables()
	if err != nil {
		return provider.ErrExternalTool("list tables", err)
	}

	i.installed = map[string]struct{}{}
	i.seq = 0

	deleted := 0
	for _, t := range tables {
		if !i.owns(t) {
			continue
		}
		i.nft.DelTable(t)
		deleted++
	}

	if deleted == 0 {
		return nil
	}

	if err := i.nft.Flush(); err != nil {
		return provider.ErrExternalTool("delete tables", err)
	}

	zap.L().Debug("Deleted policy tables", zap.String("interface", i.iface), zap.Int("count", deleted))

	return nil
}

// CleanUp deletes every policy table of the interface.
func (i *Instance) CleanUp() error {
	return i.FlushAll()
}

// owns reports whether t is a policy table of this interface.
func (i *Instance) owns(t *nftables.Table) bool {

	prefix := constants.NFTablePrefix + i.iface + "_"
	if !strings.HasPrefix(t.Name, prefix) {
		return false
	}

	parts := strings.Split(strings.TrimPrefix(t.Name, prefix), "_")
	if len(parts) != 2 {
		return false
	}

	if _, err := strconv.ParseUint(parts[0], 10, 8); err != nil {
		return false
	}

	for v, family := range families {
		if parts[1] == v.String() && t.Family == family {
			return true
		}
	}

	return false
}
