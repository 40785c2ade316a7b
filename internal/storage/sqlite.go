package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"adminbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const timeLayout = time.RFC3339Nano

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseStamp(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// ---- users ----

func (s *sqliteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(username,''), COALESCE(first_name,''), created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var at string
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &at); err != nil {
			return nil, err
		}
		u.CreatedAt = parseStamp(at)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	var at string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(username,''), COALESCE(first_name,''), created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.FirstName, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = parseStamp(at)
	return u, nil
}

func (s *sqliteStore) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, username, first_name, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET username=excluded.username, first_name=excluded.first_name`,
		u.ID, u.Username, u.FirstName, stamp(u.CreatedAt))
	return err
}

// ---- groups ----

func (s *sqliteStore) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, topic_id, name, sheet_id, created_at FROM groups ORDER BY created_at, chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		var at string
		if err := rows.Scan(&g.ChatID, &g.TopicID, &g.Name, &g.SheetID, &at); err != nil {
			return nil, err
		}
		g.CreatedAt = parseStamp(at)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetGroup(ctx context.Context, chatID int64) (Group, error) {
	var g Group
	var at string
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, topic_id, name, sheet_id, created_at FROM groups WHERE chat_id = ?`, chatID).
		Scan(&g.ChatID, &g.TopicID, &g.Name, &g.SheetID, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, ErrNotFound
	}
	if err != nil {
		return Group{}, err
	}
	g.CreatedAt = parseStamp(at)
	return g, nil
}

func (s *sqliteStore) AddGroup(ctx context.Context, g Group) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO groups(chat_id, topic_id, name, sheet_id, created_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(chat_id) DO NOTHING`,
		g.ChatID, g.TopicID, g.Name, g.SheetID, stamp(g.CreatedAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

func (s *sqliteStore) DeleteGroup(ctx context.Context, chatID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE chat_id = ?`, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- sheet targets ----

func (s *sqliteStore) ListSheetTargets(ctx context.Context) ([]SheetTarget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, worksheet, created_at FROM sheet_targets ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SheetTarget
	for rows.Next() {
		var t SheetTarget
		var at string
		if err := rows.Scan(&t.ID, &t.Name, &t.Worksheet, &at); err != nil {
			return nil, err
		}
		t.CreatedAt = parseStamp(at)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetSheetTarget(ctx context.Context, id string) (SheetTarget, error) {
	var t SheetTarget
	var at string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, worksheet, created_at FROM sheet_targets WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Worksheet, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return SheetTarget{}, ErrNotFound
	}
	if err != nil {
		return SheetTarget{}, err
	}
	t.CreatedAt = parseStamp(at)
	return t, nil
}

func (s *sqliteStore) AddSheetTarget(ctx context.Context, t SheetTarget) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sheet_targets(id, name, worksheet, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO NOTHING`,
		t.ID, t.Name, t.Worksheet, stamp(t.CreatedAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

func (s *sqliteStore) DeleteSheetTarget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sheet_targets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- rosters ----

func (s *sqliteStore) listMembers(ctx context.Context, table string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM `+table+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		var at string
		if err := rows.Scan(&m.ID, &m.Name, &at); err != nil {
			return nil, err
		}
		m.CreatedAt = parseStamp(at)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) addMember(ctx context.Context, table string, m Member) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+`(id, name, created_at) VALUES(?,?,?) ON CONFLICT(id) DO NOTHING`,
		m.ID, m.Name, stamp(m.CreatedAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

func (s *sqliteStore) deleteMember(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ListAdmins(ctx context.Context) ([]Member, error) {
	return s.listMembers(ctx, "admins")
}

func (s *sqliteStore) AddAdmin(ctx context.Context, m Member) error {
	return s.addMember(ctx, "admins", m)
}

func (s *sqliteStore) DeleteAdmin(ctx context.Context, id int64) error {
	return s.deleteMember(ctx, "admins", id)
}

func (s *sqliteStore) ListApprovers(ctx context.Context) ([]Member, error) {
	return s.listMembers(ctx, "approvers")
}

func (s *sqliteStore) AddApprover(ctx context.Context, m Member) error {
	return s.addMember(ctx, "approvers", m)
}

func (s *sqliteStore) DeleteApprover(ctx context.Context, id int64) error {
	return s.deleteMember(ctx, "approvers", id)
}

// ---- settings ----

const accessCodeKey = "access_code"

func (s *sqliteStore) GetAccessCode(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, accessCodeKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (s *sqliteStore) SetAccessCode(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		accessCodeKey, code)
	return err
}

// ---- audit ----

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, action, target, ok, err, meta) VALUES(?,?,?,?,?,?,?)`,
		stamp(e.At), e.ActorID, e.Action, nullStr(e.Target), e.OK, nullStr(e.Error), nullStr(e.MetaJSON))
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
