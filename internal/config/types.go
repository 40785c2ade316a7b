package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Console   ConsoleConfig   `json:"console"`
	Storage   StorageConfig   `json:"storage"`
	Broadcast BroadcastConfig `json:"broadcast,omitempty"`
	Sheets    SheetsConfig    `json:"sheets,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ConsoleConfig identifies the fixed principals and tunes session lifetime.
//
// PrimaryAdminID is required. PrimaryApproverID may be 0 (no primary
// approver configured).
type ConsoleConfig struct {
	PrimaryAdminID    int64 `json:"primary_admin_id"`
	PrimaryApproverID int64 `json:"primary_approver_id,omitempty"`

	// SessionTTL is a Go duration string; sessions idle longer than this
	// are swept. "0s" disables sweeping.
	SessionTTL string `json:"session_ttl,omitempty"`

	// SweepSchedule is a cron spec for the stale-session sweeper.
	// Default: "*/5 * * * *".
	SweepSchedule string `json:"sweep_schedule,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, lost on restart (tests, dry runs)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// BroadcastConfig tunes the fan-out dispatcher.
//
// Defaults (when fields are omitted/zero):
//   - rate_per_sec: 10
//   - retry_max: 1
//   - progress_every: 10
type BroadcastConfig struct {
	RatePerSec    int `json:"rate_per_sec,omitempty"`
	RetryMax      int `json:"retry_max,omitempty"`
	ProgressEvery int `json:"progress_every,omitempty"`
}

// SheetsConfig tunes the spreadsheet connectivity verifier.
type SheetsConfig struct {
	// BaseURL overrides the spreadsheet service endpoint (tests).
	BaseURL string `json:"base_url,omitempty"`
	// ProbeTimeout is a Go duration string. Default: "8s".
	ProbeTimeout string `json:"probe_timeout,omitempty"`
}
