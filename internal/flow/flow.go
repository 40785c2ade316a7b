// Package flow implements the conversational state machine behind the
// console: fixed flow definitions, per-step validation, and terminal commit.
package flow

import "context"

// Kind names one of the fixed flows. The set is closed at build time.
type Kind string

const (
	KindRegister    Kind = "register"
	KindAddGroup    Kind = "group_add"
	KindDelGroup    Kind = "group_del"
	KindAddSheet    Kind = "sheet_add"
	KindDelSheet    Kind = "sheet_del"
	KindAddAdmin    Kind = "admin_add"
	KindDelAdmin    Kind = "admin_del"
	KindAddApprover Kind = "approver_add"
	KindDelApprover Kind = "approver_del"
	KindSetCode     Kind = "code_set"
	KindBroadcast   Kind = "broadcast"
)

// FieldOperatorID is set by the engine on every field map handed to a
// commit, identifying the operator who drove the flow.
const FieldOperatorID = "operator_id"

// FieldUsername and FieldFirstName carry the requester's chat identity into
// the registration commit; the console fills them when it starts the flow.
const (
	FieldUsername  = "username"
	FieldFirstName = "first_name"
)

// Choice is one discrete option for a selection step.
type Choice struct {
	Label string
	Value string
}

// Step is one unit of input collection. Validate inspects the raw input
// (and the values accumulated so far, read-only) and returns either the
// accepted value or a rejection reason for re-prompting.
type Step struct {
	Name  string
	Field string

	// Prompt renders the text shown when the step becomes current.
	Prompt func(ctx context.Context, fields map[string]any) string

	// Choices lists discrete options for selection steps; nil for free text.
	Choices func(ctx context.Context) []Choice

	Validate func(ctx context.Context, raw string, fields map[string]any) (value any, reject string)
}

// Definition is a linear chain of steps ending in a commit action. The
// commit receives the full accumulated field map and returns a descriptive
// summary of the committed entity.
type Definition struct {
	Kind  Kind
	Steps []Step

	Commit func(ctx context.Context, fields map[string]any) (summary string, err error)
}

// First returns the initial step name.
func (d *Definition) First() string { return d.Steps[0].Name }

// StepByName returns the step and its index, or nil when unknown.
func (d *Definition) StepByName(name string) (*Step, int) {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i], i
		}
	}
	return nil, -1
}
