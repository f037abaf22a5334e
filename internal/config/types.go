package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
	Storage   StorageConfig   `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// ChatID is the group the polls and reminders go to.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`

	// OwnerUserIDs may run the operator commands. Empty disables them.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	// PollTimeout is the long-poll timeout, a Go duration string.
	PollTimeout string `json:"poll_timeout,omitempty"`

	// AnnounceOnline posts a startup message to the group. Defaults to true.
	AnnounceOnline *bool `json:"announce_online,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    string `json:"file,omitempty"`
}

type SchedulerConfig struct {
	// Timezone is the IANA zone every schedule point is interpreted in.
	Timezone string `json:"timezone,omitempty"`

	// Tick is the dispatch loop granularity, a Go duration string.
	Tick string `json:"tick,omitempty"`

	// StartupDelay defers catch-up after start, a Go duration string.
	StartupDelay string `json:"startup_delay,omitempty"`

	// PinPolls pins each freshly posted poll. Defaults to true.
	PinPolls *bool `json:"pin_polls,omitempty"`

	// Events overrides the built-in weekly table. Omitted means the default
	// table (Wed 17:30 reminder, Fri 23:00 service poll, Sun 14:00 CG poll).
	Events []EventConfig `json:"events,omitempty"`
}

type EventConfig struct {
	Day    string `json:"day"`
	At     string `json:"at"`
	Action string `json:"action"`
	Kind   string `json:"kind"`
}

type StorageConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`

	// BusyTimeout is the sqlite busy handler window, a Go duration string.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

const (
	DefaultTimezone    = "Asia/Singapore"
	DefaultStoragePath = "data/state.json"
)

// DefaultEvents is the built-in weekly table, used when scheduler.events is
// omitted.
func DefaultEvents() []EventConfig {
	return []EventConfig{
		{Day: "wed", At: "17:30", Action: "send_reminder", Kind: "cell_group"},
		{Day: "fri", At: "23:00", Action: "post_poll", Kind: "service"},
		{Day: "sun", At: "14:00", Action: "post_poll", Kind: "cell_group"},
	}
}

// Validate checks everything that can be checked without network access.
// Timezone and event-table validation happens during wiring, where the
// parsed forms are needed anyway.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.tick", c.Scheduler.Tick); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.startup_delay", c.Scheduler.StartupDelay); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	for i, e := range c.Scheduler.Events {
		if strings.TrimSpace(e.Day) == "" || strings.TrimSpace(e.At) == "" ||
			strings.TrimSpace(e.Action) == "" || strings.TrimSpace(e.Kind) == "" {
			return fmt.Errorf("scheduler.events[%d]: day, at, action and kind are all required", i)
		}
	}
	return nil
}

// EffectiveTimezone applies the default zone.
func (c *Config) EffectiveTimezone() string {
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		return tz
	}
	return DefaultTimezone
}

// EffectiveEvents applies the default table.
func (c *Config) EffectiveEvents() []EventConfig {
	if len(c.Scheduler.Events) > 0 {
		return c.Scheduler.Events
	}
	return DefaultEvents()
}

func (c *Config) AnnounceOnline() bool {
	if c.Telegram.AnnounceOnline == nil {
		return true
	}
	return *c.Telegram.AnnounceOnline
}

func (c *Config) PinPolls() bool {
	if c.Scheduler.PinPolls == nil {
		return true
	}
	return *c.Scheduler.PinPolls
}

// LogxConfig maps the logging block onto the logger service config.
func (c *Config) LogxConfig() (level string, console bool, file string) {
	level = c.Logging.Level
	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	console = true
	if c.Logging.Console != nil {
		console = *c.Logging.Console
	}
	return level, console, c.Logging.File
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
