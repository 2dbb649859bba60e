package iptablesctrl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"go.aporeto.io/dscpd/constants"
	"go.aporeto.io/dscpd/policy"
	"go.aporeto.io/dscpd/supervisor/provider"
)

var versions = []policy.IPVersion{policy.IPv4, policy.IPv6}

// Instance is the ordered rule list implementation. Every policy is a
// single rule in a per interface chain of the mangle table. Rules are kept
// in non-decreasing score order so that the DSCP target of the most specific
// match is the last one to run.
type Instance struct {
	iface             string
	chain             string
	maxSelectorLength int
	ipt               map[policy.IPVersion]provider.IptablesProvider
	installed         map[policy.IPVersion]map[uint8]int
}

// NewInstance creates a new iptables controller instance for the given
// interface, backed by iptables and ip6tables.
func NewInstance(iface string, maxSelectorLength int) (*Instance, error) {

	ipv4, err := provider.NewGoIPTablesProviderV4()
	if err != nil {
		return nil, errors.Wrap(err, "unable to initialize iptables provider")
	}

	ipv6, err := provider.NewGoIPTablesProviderV6()
	if err != nil {
		return nil, errors.Wrap(err, "unable to initialize ip6tables provider")
	}

	return NewInstanceWithProviders(iface, maxSelectorLength, ipv4, ipv6), nil
}

// NewInstanceWithProviders creates an instance on top of the given providers.
func NewInstanceWithProviders(iface string, maxSelectorLength int, ipv4, ipv6 provider.IptablesProvider) *Instance {

	if maxSelectorLength <= 0 {
		maxSelectorLength = constants.DefaultMaxSelectorLength
	}

	return &Instance{
		iface:             iface,
		chain:             ChainName(iface),
		maxSelectorLength: maxSelectorLength,
		ipt: map[policy.IPVersion]provider.IptablesProvider{
			policy.IPv4: ipv4,
			policy.IPv6: ipv6,
		},
		installed: map[policy.IPVersion]map[uint8]int{
			policy.IPv4: {},
			policy.IPv6: {},
		},
	}
}

// ChainName returns the policy chain of an interface.
func ChainName(iface string) string {
	return constants.ChainPrefix + iface
}

// Run creates the policy chain, or empties it if it survived a previous
// run, and hooks it to the output path of the interface.
func (i *Instance) Run(ctx context.Context) error {

	rules, err := extractRulesFromTemplate(jumpTmpl, i.chainInfo())
	if err != nil {
		return err
	}
	jump := rules[0]

	for _, v := range versions {
		ipt := i.ipt[v]

		if err := ipt.ClearChain(constants.MangleTable, i.chain); err != nil {
			return provider.ErrExternalTool("create chain "+i.chain, err)
		}

		exists, err := ipt.Exists(jump[0], jump[1], jump[2:]...)
		if err != nil {
			return provider.ErrExternalTool("check jump rule", err)
		}

		if !exists {
			if err := ipt.Append(jump[0], jump[1], jump[2:]...); err != nil {
				return provider.ErrExternalTool("append jump rule", err)
			}
		}

		i.installed[v] = map[uint8]int{}
	}

	zap.L().Debug("Started the iptables controller",
		zap.String("interface", i.iface),
		zap.String("chain", i.chain),
	)

	return nil
}

// Apply inserts the rule of p after every installed rule of the same IP
// version with a strictly smaller score.
func (i *Instance) Apply(p *policy.DSCPPolicy) error {

	rule, err := i.policyRule(p)
	if err != nil {
		return err
	}

	ipt, err := i.provider(p.IPVersion)
	if err != nil {
		return err
	}

	pos := i.position(p)
	if err := ipt.Insert(rule[0], rule[1], pos, rule[2:]...); err != nil {
		return provider.ErrExternalTool("insert", err)
	}

	i.installed[p.IPVersion][p.ID] = p.GranularityScore()

	zap.L().Debug("Installed policy rule",
		zap.Uint8("policyID", p.ID),
		zap.Int("position", pos),
		zap.Strings("rule", rule),
	)

	return nil
}

// Remove deletes the rule of p by replaying the rulespec it was installed
// with.
func (i *Instance) Remove(p *policy.DSCPPolicy) error {

	rule, err := i.policyRule(p)
	if err != nil {
		return err
	}

	ipt, err := i.provider(p.IPVersion)
	if err != nil {
		return err
	}

	delete(i.installed[p.IPVersion], p.ID)

	if err := ipt.Delete(rule[0], rule[1], rule[2:]...); err != nil {
		return provider.ErrExternalTool("delete", err)
	}

	return nil
}

// FlushAll removes the rules of every policy by flushing the chain once per
// IP version.
func (i *Instance) FlushAll() error {

	var result error
	for _, v := range versions {
		i.installed[v] = map[uint8]int{}
		if err := i.ipt[v].ClearChain(constants.MangleTable, i.chain); err != nil && result == nil {
			result = provider.ErrExternalTool("flush chain "+i.chain, err)
		}
	}

	return result
}

// CleanUp unhooks and deletes the policy chain.
func (i *Instance) CleanUp() error {

	rules, err := extractRulesFromTemplate(jumpTmpl, i.chainInfo())
	if err != nil {
		return err
	}
	jump := rules[0]

	for _, v := range versions {
		ipt := i.ipt[v]

		if err := ipt.Delete(jump[0], jump[1], jump[2:]...); err != nil {
			zap.L().Warn("Unable to delete jump rule", zap.String("chain", i.chain), zap.Stringer("version", v), zap.Error(err))
		}

		if err := ipt.ClearChain(constants.MangleTable, i.chain); err != nil {
			zap.L().Warn("Unable to flush chain", zap.String("chain", i.chain), zap.Stringer("version", v), zap.Error(err))
		}

		if err := ipt.DeleteChain(constants.MangleTable, i.chain); err != nil {
			zap.L().Warn("Unable to delete chain", zap.String("chain", i.chain), zap.Stringer("version", v), zap.Error(err))
		}

		i.installed[v] = map[uint8]int{}
	}

	return nil
}

func (i *Instance) provider(v policy.IPVersion) (provider.IptablesProvider, error) {

	ipt, ok := i.ipt[v]
	if !ok || ipt == nil {
		return nil, fmt.Errorf("no iptables provider for %s", v)
	}

	return ipt, nil
}

// position returns the 1-based insert position of p.
func (i *Instance) position(p *policy.DSCPPolicy) int {

	score := p.GranularityScore()
	pos := 1
	for id, s := range i.installed[p.IPVersion] {
		if id != p.ID && s < score {
			pos++
		}
	}

	return pos
}

func (i *Instance) chainInfo() *chainInfo {
	return &chainInfo{
		MangleTable: constants.MangleTable,
		OutputChain: constants.OutputChain,
		Interface:   i.iface,
		Chain:       i.chain,
	}
}

// policyRule renders the rule of p. The returned slice starts with the table
// and the chain, followed by the rulespec.
func (i *Instance) policyRule(p *policy.DSCPPolicy) ([]string, error) {

	transport, err := p.Transport()
	if err != nil {
		return nil, err
	}

	info := &ruleInfo{
		MangleTable: constants.MangleTable,
		Chain:       i.chain,
		Transport:   transport,
		Comment:     "dscp-policy-" + strconv.Itoa(int(p.ID)),
		DSCP:        p.DSCP,
	}

	if p.SrcIP != nil {
		info.SrcIP = p.SrcIP.String()
	}
	if p.DstIP != nil {
		info.DstIP = p.DstIP.String()
	}
	if p.SrcPort != nil {
		info.SrcPort = strconv.Itoa(int(*p.SrcPort))
	}
	if p.DstPort != nil {
		info.DstPort = strconv.Itoa(int(*p.DstPort))
	}
	if p.PortRange != nil {
		info.PortRange = p.PortRange.String()
	}

	rules, err := extractRulesFromTemplate(policyTmpl, info)
	if err != nil {
		return nil, err
	}

	if len(rules) != 1 {
		return nil, fmt.Errorf("expected a single rule for policy %d, got %d", p.ID, len(rules))
	}

	if n := len(strings.Join(rules[0][2:], " ")); n > i.maxSelectorLength {
		return nil, policy.ErrCapacity(p.ID, fmt.Sprintf("rule of %d bytes exceeds %d", n, i.maxSelectorLength))
	}

	return rules[0], nil
}
