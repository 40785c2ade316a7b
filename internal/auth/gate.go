// Package auth gates console entry points on operator roles. A failed check
// is an expected event, not an error: callers get a deny decision and must
// perform no session mutation.
package auth

import (
	"adminbot/internal/flow"
	"adminbot/internal/roles"
)

// Capability names what an action requires.
type Capability int

const (
	// CapAdmin covers group/sheet/approver/access-code/broadcast management.
	CapAdmin Capability = iota
	// CapPrimaryAdmin is required for managing the administrator roster
	// itself; only the primary administrator holds it.
	CapPrimaryAdmin
	// CapApprover covers read-only surfaces approvers may see.
	CapApprover
	// CapAnyone marks entry points open to unregistered operators, such as
	// recipient registration.
	CapAnyone
)

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool
	// Reason is a short operator-facing denial text. Empty when allowed.
	Reason string
}

var allow = Decision{Allowed: true}

type Gate struct {
	registry *roles.Registry
}

func NewGate(registry *roles.Registry) *Gate {
	return &Gate{registry: registry}
}

// Check answers whether the operator holds the capability.
func (g *Gate) Check(operatorID int64, cap Capability) Decision {
	switch cap {
	case CapPrimaryAdmin:
		if g.registry.IsPrimaryAdmin(operatorID) {
			return allow
		}
		return Decision{Reason: "only the primary administrator may manage administrators"}
	case CapAdmin:
		if g.registry.IsAdmin(operatorID) {
			return allow
		}
		return Decision{Reason: "administrator access required"}
	case CapApprover:
		if g.registry.IsApprover(operatorID) {
			return allow
		}
		return Decision{Reason: "approver access required"}
	case CapAnyone:
		return allow
	default:
		return Decision{Reason: "unknown capability"}
	}
}

// FlowCapability maps each flow to the capability required to start it or
// feed it input. Administrator roster management is primary-admin only.
func FlowCapability(kind flow.Kind) Capability {
	switch kind {
	case flow.KindAddAdmin, flow.KindDelAdmin:
		return CapPrimaryAdmin
	case flow.KindRegister:
		return CapAnyone
	default:
		return CapAdmin
	}
}

// CheckFlow gates one flow for one operator.
func (g *Gate) CheckFlow(operatorID int64, kind flow.Kind) Decision {
	return g.Check(operatorID, FlowCapability(kind))
}
