package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks invariants that would otherwise surface as confusing
// runtime failures. It does not touch the network.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Console.PrimaryAdminID == 0 {
		return errors.New("console.primary_admin_id is required")
	}
	if c.Console.PrimaryAdminID == c.Console.PrimaryApproverID {
		return errors.New("console.primary_approver_id must differ from console.primary_admin_id")
	}
	switch d := strings.TrimSpace(c.Storage.Driver); d {
	case "", "sqlite", "memory":
	default:
		return fmt.Errorf("storage.driver %q is not supported", d)
	}
	for _, f := range []struct{ name, val string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"console.session_ttl", c.Console.SessionTTL},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"sheets.probe_timeout", c.Sheets.ProbeTimeout},
	} {
		if f.val == "" {
			continue
		}
		if _, err := time.ParseDuration(f.val); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	if c.Broadcast.RatePerSec < 0 {
		return errors.New("broadcast.rate_per_sec must not be negative")
	}
	if c.Broadcast.RetryMax < 0 {
		return errors.New("broadcast.retry_max must not be negative")
	}
	return nil
}

// durationOr parses a duration string, falling back to def when the string
// is empty or malformed. Validate already rejected malformed values in
// committed configs.
func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func (c *Config) PollTimeout() time.Duration { return durationOr(c.Telegram.PollTimeout, 10*time.Second) }

// SessionTTL returns the idle lifetime for sessions; 0 disables sweeping.
func (c *Config) SessionTTL() time.Duration { return durationOr(c.Console.SessionTTL, 30*time.Minute) }

func (c *Config) SweepSchedule() string {
	if s := strings.TrimSpace(c.Console.SweepSchedule); s != "" {
		return s
	}
	return "*/5 * * * *"
}

func (c *Config) StorageDriver() string {
	if d := strings.TrimSpace(c.Storage.Driver); d != "" {
		return d
	}
	return "sqlite"
}

func (c *Config) BusyTimeout() time.Duration { return durationOr(c.Storage.BusyTimeout, 5*time.Second) }

func (c *Config) BroadcastRate() int {
	if c.Broadcast.RatePerSec > 0 {
		return c.Broadcast.RatePerSec
	}
	return 10
}

// RetryMax is the number of delivery retries per broadcast recipient.
func (c *Config) RetryMax() int {
	if c.Broadcast.RetryMax > 0 {
		return c.Broadcast.RetryMax
	}
	return 1
}

func (c *Config) ProgressEvery() int {
	if c.Broadcast.ProgressEvery > 0 {
		return c.Broadcast.ProgressEvery
	}
	return 10
}

func (c *Config) ProbeTimeout() time.Duration { return durationOr(c.Sheets.ProbeTimeout, 8*time.Second) }
