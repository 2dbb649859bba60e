package monitor

import (
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/pkg/errors"

	"go.aporeto.io/dscpd/policy"
)

// Event names of the supplicant control interface.
const (
	DSCPPolicyEvent   = "CTRL-EVENT-DSCP-POLICY"
	DisconnectedEvent = "CTRL-EVENT-DISCONNECTED"
)

// Qualifiers of a request_start notification.
const (
	QualifierClearAll = "clear_all"
	QualifierMore     = "more"
)

// Action is the kind of a notification.
type Action string

// Actions a notification can carry.
const (
	ActionRequestStart Action = "request_start"
	ActionRequestEnd   Action = "request_end"
	ActionAdd          Action = "add"
	ActionRemove       Action = "remove"
	ActionReject       Action = "reject"
	ActionDisconnected Action = "disconnected"
)

// ErrUnknownEvent is returned for notifications the monitor does not handle.
var ErrUnknownEvent = errors.New("unknown event")

// Event is a decoded notification.
type Event struct {
	Action Action
	// ClearAll asks for the removal of every active policy
	ClearAll bool
	// More announces that the round continues in a later request
	More bool
	// Attributes holds the key=value tokens of policy notifications
	Attributes map[string]string
	// Malformed is set when the line could not be tokenized as a whole.
	// Attributes then only hold the policy_id, when one could be recovered.
	Malformed error
}

// ParseEvent decodes a notification line. A leading <level> prefix is
// ignored. Values may be quoted. A line that does not tokenize cleanly is
// split on whitespace instead and the event is marked malformed.
func ParseEvent(line string) (*Event, error) {

	line = stripLevel(strings.TrimSpace(line))

	var malformed error

	parser := shellwords.NewParser()
	tokens, err := parser.Parse(line)
	switch {
	case err != nil:
		malformed = errors.Wrapf(err, "unable to tokenize %q", line)
	case parser.Position >= 0:
		malformed = errors.Errorf("unable to tokenize %q: unexpected operator at offset %d", line, parser.Position)
	}

	if malformed != nil {
		tokens = strings.Fields(line)
	}

	if len(tokens) == 0 {
		return nil, ErrUnknownEvent
	}

	switch tokens[0] {
	case DisconnectedEvent:
		return &Event{Action: ActionDisconnected}, nil

	case DSCPPolicyEvent:
		if len(tokens) < 2 {
			return nil, errors.Errorf("missing action in %q", line)
		}

		e, err := parseDSCPPolicy(Action(tokens[1]), tokens[2:])
		if err != nil {
			return nil, err
		}

		if malformed != nil {
			e.Malformed = malformed
			if e.Attributes != nil {
				e.Attributes = recoverPolicyID(tokens[2:])
			}
		}

		return e, nil

	default:
		return nil, ErrUnknownEvent
	}
}

// recoverPolicyID keeps the first policy_id token of an untrusted payload.
func recoverPolicyID(args []string) map[string]string {

	prefix := policy.AttrPolicyID + "="
	for _, arg := range args {
		if strings.HasPrefix(arg, prefix) {
			return map[string]string{policy.AttrPolicyID: strings.TrimPrefix(arg, prefix)}
		}
	}

	return map[string]string{}
}

func parseDSCPPolicy(action Action, args []string) (*Event, error) {

	e := &Event{Action: action}

	switch action {
	case ActionRequestStart:
		for _, arg := range args {
			switch arg {
			case QualifierClearAll:
				e.ClearAll = true
			case QualifierMore:
				e.More = true
			}
		}

	case ActionRequestEnd:

	case ActionAdd, ActionRemove, ActionReject:
		e.Attributes = map[string]string{}
		for _, arg := range args {
			kv := strings.SplitN(arg, "=", 2)
			if len(kv) != 2 || kv[0] == "" {
				continue
			}
			e.Attributes[kv[0]] = kv[1]
		}

	default:
		return nil, errors.Errorf("unknown dscp policy action %q", action)
	}

	return e, nil
}

// stripLevel removes the <N> priority prefix of unsolicited messages.
func stripLevel(line string) string {

	if !strings.HasPrefix(line, "<") {
		return line
	}

	if end := strings.Index(line, ">"); end > 0 {
		return line[end+1:]
	}

	return line
}
