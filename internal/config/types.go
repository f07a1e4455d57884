package config

type Config struct {
	Remote        RemoteConfig        `json:"remote"`
	Sync          SyncConfig          `json:"sync"`
	Reminders     RemindersConfig     `json:"reminders"`
	Notifications NotificationsConfig `json:"notifications"`
	Logging       LoggingConfig       `json:"logging"`

	// Retention controls the nightly message sweep. Omitted means disabled.
	Retention *RetentionConfig `json:"retention,omitempty"`

	// Storage controls the persistence layer. Omitted means in-memory only.
	Storage *StorageConfig `json:"storage,omitempty"`
}

// RemoteConfig points at the message store.
type RemoteConfig struct {
	URL string `json:"url"`
	// Timeout is a Go duration string (e.g. "30s"). Zero keeps the default.
	Timeout string `json:"timeout,omitempty"`
}

// SyncConfig controls poll cadence.
//
// All durations are Go duration strings (e.g. "3s", "10s").
// Defaults (when fields are omitted/zero):
//   - foreground_interval: "3s"
//   - background_interval: "10s"
type SyncConfig struct {
	ForegroundInterval string `json:"foreground_interval,omitempty"`
	BackgroundInterval string `json:"background_interval,omitempty"`
}

// RemindersConfig selects whose shifts get reminders and how early.
type RemindersConfig struct {
	// Employee is the schedule name reminders are armed for. Empty disables
	// the reminder pipeline.
	Employee string `json:"employee"`
	// Offset is one of "5m", "15m", "30m", "1h", "2h", "1d" (default "30m").
	Offset string `json:"offset,omitempty"`
	// ScheduleFile is the JSON schedule snapshot read at (re)schedule time.
	ScheduleFile string `json:"schedule_file"`
	// ExactAlarms requests exact delivery; without it reminders batch to a
	// coarser window.
	ExactAlarms bool `json:"exact_alarms"`
}

// NotificationsConfig controls the dispatcher and its sinks.
//
// Enabled is a pointer so we can distinguish "omitted" (default true) from an
// explicit false. An explicit false mutes delivery without treating it as an
// error anywhere.
type NotificationsConfig struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	TapAction  string `json:"tap_action,omitempty"`

	Telegram *TelegramSinkConfig `json:"telegram,omitempty"`
}

// TelegramSinkConfig mirrors notifications to a Telegram chat.
type TelegramSinkConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
	// Timeout is a Go duration string bounding one send (default "8s").
	Timeout string `json:"timeout,omitempty"`
}

// RetentionConfig controls the message sweep.
type RetentionConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron spec (default "0 4 * * *").
	Schedule string `json:"schedule,omitempty"`
	// MaxAge is a Go duration string (default "720h", 30 days).
	MaxAge string `json:"max_age,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./grafikd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
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

// NotificationsEnabled resolves the omitted-means-true default.
func (n NotificationsConfig) NotificationsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}
