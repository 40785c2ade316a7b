package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"adminbot/pkg/logx"
)

// both drivers must behave identically; run the contract suite against each.
func drivers(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"sqlite": sq,
		"memory": NewMemory(),
	}
}

func TestGroupLifecycle(t *testing.T) {
	t.Parallel()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := Group{ChatID: -1001234, TopicID: 7, Name: "Main Sales", SheetID: "doc1"}

			if err := st.AddGroup(ctx, g); err != nil {
				t.Fatalf("AddGroup: %v", err)
			}
			if err := st.AddGroup(ctx, g); !errors.Is(err, ErrExists) {
				t.Errorf("duplicate AddGroup = %v, want ErrExists", err)
			}
			got, err := st.GetGroup(ctx, g.ChatID)
			if err != nil {
				t.Fatalf("GetGroup: %v", err)
			}
			if got.Name != g.Name || got.SheetID != g.SheetID || got.TopicID != g.TopicID {
				t.Errorf("GetGroup = %+v", got)
			}
			if err := st.DeleteGroup(ctx, g.ChatID); err != nil {
				t.Fatalf("DeleteGroup: %v", err)
			}
			if err := st.DeleteGroup(ctx, g.ChatID); !errors.Is(err, ErrNotFound) {
				t.Errorf("second DeleteGroup = %v, want ErrNotFound", err)
			}
			if _, err := st.GetGroup(ctx, g.ChatID); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetGroup after delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSheetTargetLifecycle(t *testing.T) {
	t.Parallel()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tg := SheetTarget{ID: "abc_123-XY", Name: "Reports", Worksheet: "April"}

			if err := st.AddSheetTarget(ctx, tg); err != nil {
				t.Fatalf("AddSheetTarget: %v", err)
			}
			if err := st.AddSheetTarget(ctx, tg); !errors.Is(err, ErrExists) {
				t.Errorf("duplicate = %v, want ErrExists", err)
			}
			got, err := st.GetSheetTarget(ctx, tg.ID)
			if err != nil || got.Worksheet != "April" {
				t.Fatalf("GetSheetTarget = %+v, %v", got, err)
			}
			list, err := st.ListSheetTargets(ctx)
			if err != nil || len(list) != 1 {
				t.Fatalf("ListSheetTargets = %v, %v", list, err)
			}
			if err := st.DeleteSheetTarget(ctx, tg.ID); err != nil {
				t.Fatalf("DeleteSheetTarget: %v", err)
			}
			if err := st.DeleteSheetTarget(ctx, tg.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("second delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestUsersKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []int64{30, 10, 20} {
				if err := st.UpsertUser(ctx, User{ID: id, FirstName: "u"}); err != nil {
					t.Fatalf("UpsertUser: %v", err)
				}
			}
			// re-upsert must not move the user
			if err := st.UpsertUser(ctx, User{ID: 30, FirstName: "renamed"}); err != nil {
				t.Fatalf("UpsertUser: %v", err)
			}
			users, err := st.ListUsers(ctx)
			if err != nil {
				t.Fatalf("ListUsers: %v", err)
			}
			var ids []int64
			for _, u := range users {
				ids = append(ids, u.ID)
			}
			want := []int64{30, 10, 20}
			for i := range want {
				if ids[i] != want[i] {
					t.Fatalf("order = %v, want %v", ids, want)
				}
			}
			if users[0].FirstName != "renamed" {
				t.Errorf("upsert did not update fields: %+v", users[0])
			}
		})
	}
}

func TestGetUser(t *testing.T) {
	t.Parallel()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := st.GetUser(ctx, 7); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetUser(missing) = %v, want ErrNotFound", err)
			}
			if err := st.UpsertUser(ctx, User{ID: 7, Username: "sam", FirstName: "Sam"}); err != nil {
				t.Fatalf("UpsertUser: %v", err)
			}
			u, err := st.GetUser(ctx, 7)
			if err != nil || u.ID != 7 || u.Username != "sam" || u.FirstName != "Sam" {
				t.Fatalf("GetUser = %+v, %v", u, err)
			}
		})
	}
}

func TestRosters(t *testing.T) {
	t.Parallel()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.AddAdmin(ctx, Member{ID: 42, Name: "Bob"}); err != nil {
				t.Fatalf("AddAdmin: %v", err)
			}
			if err := st.AddAdmin(ctx, Member{ID: 42, Name: "Bob"}); !errors.Is(err, ErrExists) {
				t.Errorf("duplicate AddAdmin = %v", err)
			}
			if err := st.AddApprover(ctx, Member{ID: 43, Name: "Carol"}); err != nil {
				t.Fatalf("AddApprover: %v", err)
			}
			admins, _ := st.ListAdmins(ctx)
			approvers, _ := st.ListApprovers(ctx)
			if len(admins) != 1 || admins[0].Name != "Bob" {
				t.Errorf("admins = %v", admins)
			}
			if len(approvers) != 1 || approvers[0].Name != "Carol" {
				t.Errorf("approvers = %v", approvers)
			}
			if err := st.DeleteAdmin(ctx, 42); err != nil {
				t.Fatalf("DeleteAdmin: %v", err)
			}
			if err := st.DeleteApprover(ctx, 99); !errors.Is(err, ErrNotFound) {
				t.Errorf("DeleteApprover(99) = %v", err)
			}
		})
	}
}

func TestAccessCode(t *testing.T) {
	t.Parallel()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			code, err := st.GetAccessCode(ctx)
			if err != nil || code != "" {
				t.Fatalf("initial GetAccessCode = %q, %v", code, err)
			}
			if err := st.SetAccessCode(ctx, "2025"); err != nil {
				t.Fatalf("SetAccessCode: %v", err)
			}
			if err := st.SetAccessCode(ctx, "9999"); err != nil {
				t.Fatalf("SetAccessCode overwrite: %v", err)
			}
			code, err = st.GetAccessCode(ctx)
			if err != nil || code != "9999" {
				t.Fatalf("GetAccessCode = %q, %v", code, err)
			}
		})
	}
}

func TestAppendAudit(t *testing.T) {
	t.Parallel()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := st.AppendAudit(ctx, AuditEntry{ActorID: 1000, Action: "group_add", Target: "-1001234", OK: true})
			if err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
			err = st.AppendAudit(ctx, AuditEntry{ActorID: 1000, Action: "group_del", Error: "not found"})
			if err != nil {
				t.Fatalf("AppendAudit failure row: %v", err)
			}
		})
	}
}
