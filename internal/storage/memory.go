package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs the "memory" driver and the test
// suites of packages that collaborate with storage.
type Memory struct {
	mu sync.Mutex

	users     map[int64]User
	groups    map[int64]Group
	sheets    map[string]SheetTarget
	admins    map[int64]Member
	approvers map[int64]Member
	code      string
	audit     []AuditEntry

	seq int64 // insertion counter standing in for created_at ordering
	ord map[any]int64
}

func NewMemory() *Memory {
	return &Memory{
		users:     map[int64]User{},
		groups:    map[int64]Group{},
		sheets:    map[string]SheetTarget{},
		admins:    map[int64]Member{},
		approvers: map[int64]Member{},
		ord:       map[any]int64{},
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) touch(key any) {
	if _, ok := m.ord[key]; !ok {
		m.seq++
		m.ord[key] = m.seq
	}
}

func (m *Memory) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.ord[userKey(out[i].ID)] < m.ord[userKey(out[j].ID)]
	})
	return out, nil
}

type userKey int64
type groupKey int64
type sheetKey string

func (m *Memory) GetUser(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) UpsertUser(ctx context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if old, ok := m.users[u.ID]; ok {
		u.CreatedAt = old.CreatedAt
	}
	m.users[u.ID] = u
	m.touch(userKey(u.ID))
	return nil
}

func (m *Memory) ListGroups(ctx context.Context) ([]Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.ord[groupKey(out[i].ChatID)] < m.ord[groupKey(out[j].ChatID)]
	})
	return out, nil
}

func (m *Memory) GetGroup(ctx context.Context, chatID int64) (Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[chatID]
	if !ok {
		return Group{}, ErrNotFound
	}
	return g, nil
}

func (m *Memory) AddGroup(ctx context.Context, g Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[g.ChatID]; ok {
		return ErrExists
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	m.groups[g.ChatID] = g
	m.touch(groupKey(g.ChatID))
	return nil
}

func (m *Memory) DeleteGroup(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[chatID]; !ok {
		return ErrNotFound
	}
	delete(m.groups, chatID)
	return nil
}

func (m *Memory) ListSheetTargets(ctx context.Context) ([]SheetTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SheetTarget, 0, len(m.sheets))
	for _, t := range m.sheets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.ord[sheetKey(out[i].ID)] < m.ord[sheetKey(out[j].ID)]
	})
	return out, nil
}

func (m *Memory) GetSheetTarget(ctx context.Context, id string) (SheetTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.sheets[id]
	if !ok {
		return SheetTarget{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) AddSheetTarget(ctx context.Context, t SheetTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[t.ID]; ok {
		return ErrExists
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	m.sheets[t.ID] = t
	m.touch(sheetKey(t.ID))
	return nil
}

func (m *Memory) DeleteSheetTarget(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[id]; !ok {
		return ErrNotFound
	}
	delete(m.sheets, id)
	return nil
}

func listMembers(set map[int64]Member) []Member {
	out := make([]Member, 0, len(set))
	for _, mm := range set {
		out = append(out, mm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func addMember(set map[int64]Member, mm Member) error {
	if _, ok := set[mm.ID]; ok {
		return ErrExists
	}
	if mm.CreatedAt.IsZero() {
		mm.CreatedAt = time.Now()
	}
	set[mm.ID] = mm
	return nil
}

func deleteMember(set map[int64]Member, id int64) error {
	if _, ok := set[id]; !ok {
		return ErrNotFound
	}
	delete(set, id)
	return nil
}

func (m *Memory) ListAdmins(ctx context.Context) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return listMembers(m.admins), nil
}

func (m *Memory) AddAdmin(ctx context.Context, mm Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return addMember(m.admins, mm)
}

func (m *Memory) DeleteAdmin(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return deleteMember(m.admins, id)
}

func (m *Memory) ListApprovers(ctx context.Context) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return listMembers(m.approvers), nil
}

func (m *Memory) AddApprover(ctx context.Context, mm Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return addMember(m.approvers, mm)
}

func (m *Memory) DeleteApprover(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return deleteMember(m.approvers, id)
}

func (m *Memory) GetAccessCode(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.code, nil
}

func (m *Memory) SetAccessCode(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.code = code
	return nil
}

func (m *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.audit = append(m.audit, e)
	return nil
}

// Audit returns a copy of the audit trail (tests).
func (m *Memory) Audit() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}
