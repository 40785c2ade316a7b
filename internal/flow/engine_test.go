package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"adminbot/internal/roles"
	"adminbot/internal/session"
	"adminbot/internal/storage"
	"adminbot/pkg/logx"
)

const operator = int64(1000)

type stubVerifier struct {
	ok  bool
	msg string
}

func (v stubVerifier) VerifyConnectivity(context.Context, string, string) (bool, string) {
	return v.ok, v.msg
}

type harness struct {
	engine    *Engine
	store     *storage.Memory
	registry  *roles.Registry
	broadcast []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    storage.NewMemory(),
		registry: roles.NewRegistry(operator, 2000),
	}
	deps := Deps{
		Registry: h.registry,
		Store:    h.store,
		Sheets:   stubVerifier{ok: true, msg: "ok"},
		StartBroadcast: func(_ context.Context, operatorID int64, text string) (int, error) {
			if operatorID != operator {
				t.Errorf("broadcast initiator = %d, want %d", operatorID, operator)
			}
			h.broadcast = append(h.broadcast, text)
			return 3, nil
		},
	}
	h.engine = NewEngine(session.NewStore(), BuildDefinitions(deps), logx.Nop())
	return h
}

func (h *harness) start(t *testing.T, kind Kind) {
	t.Helper()
	res, err := h.engine.Start(operator, kind)
	if err != nil {
		t.Fatalf("Start(%s): %v", kind, err)
	}
	if res.Status != StatusPrompt || res.Step == nil {
		t.Fatalf("Start(%s) = %+v", kind, res)
	}
}

func (h *harness) accept(t *testing.T, input string) Result {
	t.Helper()
	res := h.engine.ProcessInput(context.Background(), operator, input)
	if res.Status == StatusRejected {
		t.Fatalf("input %q rejected: %s", input, res.Reason)
	}
	return res
}

func TestAddGroupFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	if err := h.store.AddSheetTarget(ctx, storage.SheetTarget{ID: "T1", Name: "Reports", Worksheet: "April"}); err != nil {
		t.Fatal(err)
	}

	h.start(t, KindAddGroup)
	h.accept(t, "https://t.me/c/1234567890/7")

	// the locator yields one composite value; validators mutate nothing else
	sess := h.engine.Active(operator)
	if sess == nil || len(sess.Fields) != 1 {
		t.Fatalf("session after locator = %+v", sess)
	}

	h.accept(t, "Main Sales")
	res := h.accept(t, "T1")

	if res.Status != StatusCommitted {
		t.Fatalf("final = %+v", res)
	}
	if !strings.Contains(res.Summary, "Main Sales") || !strings.Contains(res.Summary, "T1") {
		t.Errorf("summary = %q", res.Summary)
	}
	g, err := h.store.GetGroup(ctx, -1001234567890)
	if err != nil || g.TopicID != 7 || g.SheetID != "T1" {
		t.Fatalf("group = %+v, %v", g, err)
	}
	if h.engine.Active(operator) != nil {
		t.Error("session survived commit")
	}
}

func TestRegisterFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	if err := h.store.SetAccessCode(ctx, "9f2k"); err != nil {
		t.Fatal(err)
	}
	requester := int64(5555)

	res, err := h.engine.Start(requester, KindRegister)
	if err != nil || res.Status != StatusPrompt {
		t.Fatalf("Start = %+v, %v", res, err)
	}
	sess := h.engine.Active(requester)
	sess.Fields[FieldUsername] = "sam"
	sess.Fields[FieldFirstName] = "Sam"

	if res := h.engine.ProcessInput(ctx, requester, "wrong"); res.Status != StatusRejected {
		t.Fatalf("wrong code = %+v", res)
	}
	if users, _ := h.store.ListUsers(ctx); len(users) != 0 {
		t.Fatalf("registered on a wrong code: %+v", users)
	}

	res = h.engine.ProcessInput(ctx, requester, "9f2k")
	if res.Status != StatusCommitted {
		t.Fatalf("final = %+v", res)
	}
	u, err := h.store.GetUser(ctx, requester)
	if err != nil || u.Username != "sam" || u.FirstName != "Sam" {
		t.Fatalf("user = %+v, %v", u, err)
	}
	if h.engine.Active(requester) != nil {
		t.Error("session survived commit")
	}
}

func TestRegisterFlowClosedWithoutCode(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	requester := int64(5555)

	if _, err := h.engine.Start(requester, KindRegister); err != nil {
		t.Fatal(err)
	}
	res := h.engine.ProcessInput(ctx, requester, "anything")
	if res.Status != StatusRejected || !strings.Contains(res.Reason, "closed") {
		t.Fatalf("result = %+v", res)
	}
	if users, _ := h.store.ListUsers(ctx); len(users) != 0 {
		t.Fatalf("registered while closed: %+v", users)
	}
}

func TestAddGroupRejectsMalformedLocator(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t, KindAddGroup)

	for i := 0; i < 3; i++ {
		res := h.engine.ProcessInput(context.Background(), operator, "not-a-link")
		if res.Status != StatusRejected {
			t.Fatalf("attempt %d = %+v", i, res)
		}
		if res.Step.Name != "locator" {
			t.Fatalf("step moved to %q on rejection", res.Step.Name)
		}
	}
	sess := h.engine.Active(operator)
	if sess == nil || sess.Step != "locator" || len(sess.Fields) != 0 {
		t.Fatalf("session after rejections = %+v", sess)
	}
}

func TestAddSheetConnectivityFailureAborts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	defs := BuildDefinitions(Deps{
		Registry: h.registry,
		Store:    h.store,
		Sheets:   stubVerifier{ok: false, msg: "document not found"},
	})
	engine := NewEngine(session.NewStore(), defs, logx.Nop())

	if _, err := engine.Start(operator, KindAddSheet); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	engine.ProcessInput(ctx, operator, "Reports")
	engine.ProcessInput(ctx, operator, "https://docs.google.com/spreadsheets/d/doc1")
	res := engine.ProcessInput(ctx, operator, "April")

	if res.Status != StatusCommitFailed {
		t.Fatalf("final = %+v", res)
	}
	if _, err := h.store.GetSheetTarget(ctx, "doc1"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("record created despite failed connectivity check")
	}
	if engine.Active(operator) != nil {
		t.Error("session survived failed commit")
	}
}

func TestAddApproverRejectsExistingAdmin(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.registry.AddAdmin(42, "Bob")

	h.start(t, KindAddApprover)
	res := h.engine.ProcessInput(context.Background(), operator, "42")
	if res.Status != StatusRejected {
		t.Fatalf("result = %+v", res)
	}
	if res.Step.Name != "id" {
		t.Errorf("session advanced to %q", res.Step.Name)
	}
}

func TestChangeAccessCodeFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	if err := h.store.SetAccessCode(ctx, "1111"); err != nil {
		t.Fatal(err)
	}

	h.start(t, KindSetCode)

	// same as current code
	if res := h.engine.ProcessInput(ctx, operator, "1111"); res.Status != StatusRejected {
		t.Fatalf("unchanged code accepted: %+v", res)
	}
	h.accept(t, "2025")

	// mismatching confirmation keeps the step and the old code
	res := h.engine.ProcessInput(ctx, operator, "2024")
	if res.Status != StatusRejected || res.Step.Name != "confirm" {
		t.Fatalf("mismatch = %+v", res)
	}
	if code, _ := h.store.GetAccessCode(ctx); code != "1111" {
		t.Fatalf("code changed early: %q", code)
	}

	if res := h.accept(t, "2025"); res.Status != StatusCommitted {
		t.Fatalf("confirm = %+v", res)
	}
	if code, _ := h.store.GetAccessCode(ctx); code != "2025" {
		t.Fatalf("code = %q, want 2025", code)
	}
}

func TestBroadcastFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.start(t, KindBroadcast)
	if res := h.engine.ProcessInput(ctx, operator, "hey"); res.Status != StatusRejected {
		t.Fatalf("short body accepted: %+v", res)
	}
	h.accept(t, "maintenance tonight at 22:00")

	// only the explicit confirm choice fires the dispatch
	if res := h.engine.ProcessInput(ctx, operator, "yes please"); res.Status != StatusRejected {
		t.Fatalf("free-text confirm accepted: %+v", res)
	}
	res := h.accept(t, "confirm")
	if res.Status != StatusCommitted {
		t.Fatalf("final = %+v", res)
	}
	if len(h.broadcast) != 1 || h.broadcast[0] != "maintenance tonight at 22:00" {
		t.Fatalf("broadcasts = %v", h.broadcast)
	}
}

func TestAdminLifecycleFlows(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.start(t, KindAddAdmin)
	if res := h.engine.ProcessInput(ctx, operator, "1000"); res.Status != StatusRejected {
		t.Fatalf("primary admin id accepted: %+v", res)
	}
	h.accept(t, "42")
	if res := h.accept(t, "Bob"); res.Status != StatusCommitted {
		t.Fatalf("commit = %+v", res)
	}
	if !h.registry.IsAdmin(42) {
		t.Fatal("registry missing new admin")
	}
	if members, _ := h.store.ListAdmins(ctx); len(members) != 1 || members[0].ID != 42 {
		t.Fatalf("persisted admins = %v", members)
	}

	h.start(t, KindDelAdmin)
	if res := h.engine.ProcessInput(ctx, operator, "77"); res.Status != StatusRejected {
		t.Fatalf("unknown admin id accepted: %+v", res)
	}
	if res := h.accept(t, "42"); res.Status != StatusCommitted {
		t.Fatalf("commit = %+v", res)
	}
	if h.registry.IsAdmin(42) {
		t.Fatal("admin still present after removal")
	}
	if members, _ := h.store.ListAdmins(ctx); len(members) != 0 {
		t.Fatalf("persisted admins = %v", members)
	}
}

func TestCancelDiscardsSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t, KindBroadcast)
	h.accept(t, "maintenance tonight at 22:00")

	res := h.engine.Cancel(operator)
	if res.Status != StatusCanceled || res.Kind != KindBroadcast {
		t.Fatalf("Cancel = %+v", res)
	}
	if h.engine.Active(operator) != nil {
		t.Error("session survived cancel")
	}
	if len(h.broadcast) != 0 {
		t.Error("cancel ran the commit")
	}
	if res := h.engine.Cancel(operator); res.Status != StatusNone {
		t.Errorf("second Cancel = %+v", res)
	}
}

func TestStartOverwritesActiveFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t, KindAddGroup)
	h.accept(t, "-100500")

	h.start(t, KindBroadcast)
	sess := h.engine.Active(operator)
	if sess.FlowKind != string(KindBroadcast) || sess.Step != "body" {
		t.Fatalf("session = %+v", sess)
	}
	if len(sess.Fields) != 0 {
		t.Errorf("fields leaked across flows: %v", sess.Fields)
	}
}

func TestProcessInputWithoutSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	res := h.engine.ProcessInput(context.Background(), operator, "anything")
	if res.Status != StatusNone {
		t.Fatalf("result = %+v", res)
	}
}
