// Package roles tracks who may drive the console: the fixed primary
// administrator and approver plus the mutable additional sets.
package roles

import (
	"sort"
	"sync"
)

// Registry answers permission queries and mutates the additional
// admin/approver sets. One exclusive lock guards the sets so mutations are
// atomic with respect to permission checks on other operators' events.
//
// Invariants:
//   - additionalAdmins never contains the primary admin.
//   - additionalApprovers never contains the primary approver.
//   - an identity is never both an admin and an approver-only entry;
//     admins are implicitly approvers.
type Registry struct {
	mu sync.Mutex

	primaryAdmin    int64
	primaryApprover int64 // 0 means not configured

	admins    map[int64]string // id -> display name
	approvers map[int64]string
}

func NewRegistry(primaryAdmin, primaryApprover int64) *Registry {
	return &Registry{
		primaryAdmin:    primaryAdmin,
		primaryApprover: primaryApprover,
		admins:          map[int64]string{},
		approvers:       map[int64]string{},
	}
}

func (r *Registry) PrimaryAdmin() int64    { return r.primaryAdmin }
func (r *Registry) PrimaryApprover() int64 { return r.primaryApprover }

func (r *Registry) IsPrimaryAdmin(id int64) bool { return id == r.primaryAdmin }

func (r *Registry) IsAdmin(id int64) bool {
	if id == r.primaryAdmin {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.admins[id]
	return ok
}

func (r *Registry) IsApprover(id int64) bool {
	if r.IsAdmin(id) {
		return true
	}
	if r.primaryApprover != 0 && id == r.primaryApprover {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.approvers[id]
	return ok
}

// AddAdmin inserts an additional admin. Returns false without mutation when
// id is the primary admin or already present.
func (r *Registry) AddAdmin(id int64, name string) bool {
	if id == r.primaryAdmin {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.admins[id]; ok {
		return false
	}
	r.admins[id] = name
	// An admin is implicitly an approver; drop any approver-only entry so
	// the sets stay disjoint.
	delete(r.approvers, id)
	return true
}

// RemoveAdmin removes an additional admin. The primary admin is permanent.
func (r *Registry) RemoveAdmin(id int64) bool {
	if id == r.primaryAdmin {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.admins[id]; !ok {
		return false
	}
	delete(r.admins, id)
	return true
}

// AddApprover inserts an additional approver. Rejected when id is the
// primary approver, any kind of admin, or already present.
func (r *Registry) AddApprover(id int64, name string) bool {
	if r.primaryApprover != 0 && id == r.primaryApprover {
		return false
	}
	if r.IsAdmin(id) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.approvers[id]; ok {
		return false
	}
	r.approvers[id] = name
	return true
}

// RemoveApprover removes an additional approver. The primary approver is
// permanent.
func (r *Registry) RemoveApprover(id int64) bool {
	if r.primaryApprover != 0 && id == r.primaryApprover {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.approvers[id]; !ok {
		return false
	}
	delete(r.approvers, id)
	return true
}

// Member is one roster entry.
type Member struct {
	ID      int64
	Name    string
	Primary bool
}

// Admins returns the admin roster, primary first.
func (r *Registry) Admins() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Member, 0, len(r.admins)+1)
	out = append(out, Member{ID: r.primaryAdmin, Primary: true})
	for id, name := range r.admins {
		out = append(out, Member{ID: id, Name: name})
	}
	sortMembers(out)
	return out
}

// Approvers returns the approver roster (approver-only entries), primary
// first when configured.
func (r *Registry) Approvers() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Member, 0, len(r.approvers)+1)
	if r.primaryApprover != 0 {
		out = append(out, Member{ID: r.primaryApprover, Primary: true})
	}
	for id, name := range r.approvers {
		out = append(out, Member{ID: id, Name: name})
	}
	sortMembers(out)
	return out
}

// sortMembers orders primary first, then ascending by id for stable output.
func sortMembers(ms []Member) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Primary != ms[j].Primary {
			return ms[i].Primary
		}
		return ms[i].ID < ms[j].ID
	})
}
