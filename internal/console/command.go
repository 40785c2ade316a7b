package console

import (
	"adminbot/internal/flow"
	"adminbot/pkg/tgui"
)

// scope tags every callback button the console emits.
const scope = "console"

// Action is the closed set of console commands. Callback data is decoded
// into this enumeration once, at the transport boundary; handlers never
// touch raw callback strings.
type Action string

const (
	ActionMenu      Action = "menu"
	ActionCancel    Action = "cancel"
	ActionFlow      Action = "flow"   // payload: flow kind
	ActionChoice    Action = "choice" // payload: selected value for the current step
	ActionAdmins    Action = "admins"
	ActionApprovers Action = "approvers"
	ActionUsers     Action = "users"
	ActionGroups    Action = "groups"
	ActionSheets    Action = "sheets"
	ActionCode      Action = "code"
)

// Command is one decoded console callback.
type Command struct {
	Action  Action
	Payload string
}

// DecodeCommand parses callback data. Unknown scopes or actions yield
// ok=false and are ignored upstream.
func DecodeCommand(data string) (Command, bool) {
	s, action, payload := tgui.SplitData(data)
	if s != scope {
		return Command{}, false
	}
	switch a := Action(action); a {
	case ActionMenu, ActionCancel, ActionFlow, ActionChoice,
		ActionAdmins, ActionApprovers, ActionUsers, ActionGroups, ActionSheets, ActionCode:
		return Command{Action: a, Payload: payload}, true
	default:
		return Command{}, false
	}
}

// EncodeCommand renders a Command back into callback data for buttons.
func EncodeCommand(cmd Command) string {
	return tgui.Data(scope, string(cmd.Action), cmd.Payload)
}

func flowButton(label string, kind flow.Kind) (string, string) {
	return label, EncodeCommand(Command{Action: ActionFlow, Payload: string(kind)})
}
