// Package storage persists console records: recipients, work-groups,
// spreadsheet targets, rosters, the shared access code, and the audit trail.
package storage

import (
	"context"
	"errors"
	"strings"

	"adminbot/pkg/logx"
)

// Store is the persistence API the console core consumes.
type Store interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	UpsertUser(ctx context.Context, u User) error

	ListGroups(ctx context.Context) ([]Group, error)
	GetGroup(ctx context.Context, chatID int64) (Group, error)
	AddGroup(ctx context.Context, g Group) error
	DeleteGroup(ctx context.Context, chatID int64) error

	ListSheetTargets(ctx context.Context) ([]SheetTarget, error)
	GetSheetTarget(ctx context.Context, id string) (SheetTarget, error)
	AddSheetTarget(ctx context.Context, t SheetTarget) error
	DeleteSheetTarget(ctx context.Context, id string) error

	ListAdmins(ctx context.Context) ([]Member, error)
	AddAdmin(ctx context.Context, m Member) error
	DeleteAdmin(ctx context.Context, id int64) error

	ListApprovers(ctx context.Context) ([]Member, error)
	AddApprover(ctx context.Context, m Member) error
	DeleteApprover(ctx context.Context, id int64) error

	GetAccessCode(ctx context.Context) (string, error)
	SetAccessCode(ctx context.Context, code string) error

	AppendAudit(ctx context.Context, e AuditEntry) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
