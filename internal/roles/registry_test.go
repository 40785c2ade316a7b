package roles

import (
	"sync"
	"testing"
)

const (
	primaryAdmin    = int64(1000)
	primaryApprover = int64(2000)
)

func newTestRegistry() *Registry {
	return NewRegistry(primaryAdmin, primaryApprover)
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	if !r.IsAdmin(primaryAdmin) {
		t.Error("primary admin must be admin")
	}
	if r.IsAdmin(42) {
		t.Error("unknown id must not be admin")
	}
	if !r.AddAdmin(42, "Bob") {
		t.Fatal("AddAdmin(42) = false")
	}
	if !r.IsAdmin(42) {
		t.Error("added id must be admin")
	}
}

func TestIsApprover(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	if !r.IsApprover(primaryApprover) {
		t.Error("primary approver must be approver")
	}
	if !r.IsApprover(primaryAdmin) {
		t.Error("admins are implicitly approvers")
	}
	r.AddAdmin(42, "Bob")
	if !r.IsApprover(42) {
		t.Error("additional admin must be approver")
	}
	if r.IsApprover(43) {
		t.Error("unknown id must not be approver")
	}
	r.AddApprover(43, "Carol")
	if !r.IsApprover(43) {
		t.Error("added approver must be approver")
	}
	if r.IsAdmin(43) {
		t.Error("approver-only entry must not be admin")
	}
}

func TestAddAdminRejections(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	if r.AddAdmin(primaryAdmin, "x") {
		t.Error("AddAdmin(primary) must fail")
	}
	if !r.AddAdmin(42, "Bob") || r.AddAdmin(42, "Bob again") {
		t.Error("duplicate AddAdmin must fail")
	}
	if len(r.Admins()) != 2 {
		t.Errorf("roster = %v", r.Admins())
	}
}

func TestRemoveAdmin(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	if r.RemoveAdmin(primaryAdmin) {
		t.Error("primary admin is permanent")
	}
	if r.RemoveAdmin(42) {
		t.Error("removing unknown id must fail")
	}
	r.AddAdmin(42, "Bob")
	if !r.RemoveAdmin(42) {
		t.Error("RemoveAdmin(42) = false")
	}
	if r.IsAdmin(42) {
		t.Error("removed id still admin")
	}
}

func TestAddApproverRejectsAdmins(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	if r.AddApprover(primaryAdmin, "x") {
		t.Error("primary admin cannot become approver-only")
	}
	if r.AddApprover(primaryApprover, "x") {
		t.Error("primary approver cannot be re-added")
	}
	r.AddAdmin(42, "Bob")
	if r.AddApprover(42, "Bob") {
		t.Error("existing admin cannot become approver-only")
	}
	if !r.AddApprover(43, "Carol") || r.AddApprover(43, "Carol") {
		t.Error("duplicate AddApprover must fail")
	}
}

func TestPromotingApproverToAdminDropsApproverEntry(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	r.AddApprover(43, "Carol")
	if !r.AddAdmin(43, "Carol") {
		t.Fatal("promotion failed")
	}
	for _, m := range r.Approvers() {
		if m.ID == 43 {
			t.Error("promoted admin still listed as approver-only")
		}
	}
	if !r.IsApprover(43) {
		t.Error("admin must remain approver")
	}
}

func TestRemoveApprover(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	if r.RemoveApprover(primaryApprover) {
		t.Error("primary approver is permanent")
	}
	if r.RemoveApprover(43) {
		t.Error("removing unknown approver must fail")
	}
	r.AddApprover(43, "Carol")
	if !r.RemoveApprover(43) {
		t.Error("RemoveApprover(43) = false")
	}
}

func TestNoPrimaryApprover(t *testing.T) {
	t.Parallel()

	r := NewRegistry(primaryAdmin, 0)
	if r.IsApprover(0) {
		t.Error("id 0 must never be approver when no primary approver is set")
	}
	if len(r.Approvers()) != 0 {
		t.Errorf("roster = %v", r.Approvers())
	}
}

func TestRosterOrder(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	r.AddAdmin(9, "i")
	r.AddAdmin(3, "c")
	r.AddAdmin(7, "g")
	got := r.Admins()
	if !got[0].Primary || got[0].ID != primaryAdmin {
		t.Fatalf("primary not first: %v", got)
	}
	for i := 2; i < len(got); i++ {
		if got[i-1].ID > got[i].ID {
			t.Fatalf("roster not sorted: %v", got)
		}
	}
}

func TestConcurrentMutation(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		id := int64(100 + i)
		go func() {
			defer wg.Done()
			r.AddAdmin(id, "x")
			r.RemoveAdmin(id)
		}()
		go func() {
			defer wg.Done()
			_ = r.IsApprover(id)
			_ = r.IsAdmin(id)
		}()
	}
	wg.Wait()
	if got := len(r.Admins()); got != 1 {
		t.Errorf("admins left = %d, want 1", got)
	}
}
