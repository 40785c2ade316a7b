package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
)

// Config configures persistence.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, lost on restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// User is a registered broadcast recipient.
type User struct {
	ID        int64
	Username  string
	FirstName string
	CreatedAt time.Time
}

// Group is a registered work-group bound to a spreadsheet target.
type Group struct {
	ChatID    int64
	TopicID   int
	Name      string
	SheetID   string
	CreatedAt time.Time
}

// SheetTarget is a registered spreadsheet document plus worksheet.
type SheetTarget struct {
	ID        string // document id extracted from the URL
	Name      string
	Worksheet string
	CreatedAt time.Time
}

// Member is a persisted admin or approver roster row.
type Member struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// AuditEntry records one operator action. Compact and schema-stable.
type AuditEntry struct {
	At       time.Time
	ActorID  int64
	Action   string
	Target   string
	OK       bool
	Error    string
	MetaJSON string
}
