package iptablesctrl

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// jumpRule sends the traffic leaving the interface to the policy chain.
var jumpRule = `
{{.MangleTable}} {{.OutputChain}} -o {{.Interface}} -m comment --comment dscp-policies -j {{.Chain}}
`

// policyRule marks the traffic selected by a single policy. Clauses are only
// rendered for the selector fields that are present.
var policyRule = `
{{.MangleTable}} {{.Chain}}{{if .SrcIP}} -s {{.SrcIP}}{{end}}{{if .DstIP}} -d {{.DstIP}}{{end}}{{if .Transport}} -p {{.Transport}}{{end}}{{if .SrcPort}} --sport {{.SrcPort}}{{end}}{{if .DstPort}} --dport {{.DstPort}}{{end}}{{if .PortRange}} -m multiport --dports {{.PortRange}}{{end}} -m comment --comment {{.Comment}} -j DSCP --set-dscp {{.DSCP}}
`

var (
	jumpTmpl   = template.Must(template.New("jumpRule").Parse(jumpRule))
	policyTmpl = template.Must(template.New("policyRule").Parse(policyRule))
)

// chainInfo holds the values rendered into the jump rule.
type chainInfo struct {
	MangleTable string
	OutputChain string
	Interface   string
	Chain       string
}

// ruleInfo holds the values rendered into a policy rule. Empty strings are
// absent selectors.
type ruleInfo struct {
	MangleTable string
	Chain       string
	SrcIP       string
	DstIP       string
	Transport   string
	SrcPort     string
	DstPort     string
	PortRange   string
	Comment     string
	DSCP        uint8
}

// extractRulesFromTemplate renders tmpl and splits the output into one
// argument list per non empty line. The first two fields of every rule are
// the table and the chain.
func extractRulesFromTemplate(tmpl *template.Template, data interface{}) ([][]string, error) {

	buffer := bytes.NewBuffer([]byte{})
	if err := tmpl.Execute(buffer, data); err != nil {
		return [][]string{}, fmt.Errorf("unable to execute template:%s", err)
	}

	rules := [][]string{}
	for _, m := range strings.Split(buffer.String(), "\n") {
		rule := strings.Fields(m)
		// ignore empty lines in the buffer
		if len(rule) <= 1 {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
