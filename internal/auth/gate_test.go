package auth

import (
	"testing"

	"adminbot/internal/flow"
	"adminbot/internal/roles"
)

func TestCheck(t *testing.T) {
	t.Parallel()

	reg := roles.NewRegistry(1000, 2000)
	reg.AddAdmin(42, "Bob")
	reg.AddApprover(43, "Carol")
	g := NewGate(reg)

	cases := []struct {
		name string
		id   int64
		cap  Capability
		want bool
	}{
		{"primary admin holds primary cap", 1000, CapPrimaryAdmin, true},
		{"additional admin lacks primary cap", 42, CapPrimaryAdmin, false},
		{"additional admin holds admin cap", 42, CapAdmin, true},
		{"approver lacks admin cap", 43, CapAdmin, false},
		{"approver holds approver cap", 43, CapApprover, true},
		{"stranger lacks everything", 99, CapApprover, false},
		{"stranger holds open cap", 99, CapAnyone, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := g.Check(tc.id, tc.cap)
			if d.Allowed != tc.want {
				t.Fatalf("Check(%d, %v) = %+v, want allowed=%v", tc.id, tc.cap, d, tc.want)
			}
			if !d.Allowed && d.Reason == "" {
				t.Error("denial without reason")
			}
			if d.Allowed && d.Reason != "" {
				t.Errorf("allow with reason %q", d.Reason)
			}
		})
	}
}

func TestFlowCapability(t *testing.T) {
	t.Parallel()

	for _, kind := range []flow.Kind{flow.KindAddAdmin, flow.KindDelAdmin} {
		if FlowCapability(kind) != CapPrimaryAdmin {
			t.Errorf("FlowCapability(%s) should be primary-admin only", kind)
		}
	}
	for _, kind := range []flow.Kind{
		flow.KindAddGroup, flow.KindDelGroup, flow.KindAddSheet, flow.KindDelSheet,
		flow.KindAddApprover, flow.KindDelApprover, flow.KindSetCode, flow.KindBroadcast,
	} {
		if FlowCapability(kind) != CapAdmin {
			t.Errorf("FlowCapability(%s) should be admin", kind)
		}
	}
	if FlowCapability(flow.KindRegister) != CapAnyone {
		t.Error("FlowCapability(register) should be open to anyone")
	}
}

func TestCheckFlow(t *testing.T) {
	t.Parallel()

	reg := roles.NewRegistry(1000, 0)
	reg.AddAdmin(42, "Bob")
	g := NewGate(reg)

	if d := g.CheckFlow(42, flow.KindAddAdmin); d.Allowed {
		t.Error("additional admin may not manage the admin roster")
	}
	if d := g.CheckFlow(42, flow.KindBroadcast); !d.Allowed {
		t.Errorf("admin denied broadcast: %+v", d)
	}
	if d := g.CheckFlow(1000, flow.KindAddAdmin); !d.Allowed {
		t.Errorf("primary admin denied roster management: %+v", d)
	}
	if d := g.CheckFlow(99, flow.KindRegister); !d.Allowed {
		t.Errorf("stranger denied registration: %+v", d)
	}
}
