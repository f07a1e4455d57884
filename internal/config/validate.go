package config

import (
	"fmt"
	"net/url"
	"strings"

	"grafikd/internal/reminders"
)

// Validate rejects configs the services could not start with. It runs before
// every commit, including hot reloads, so a bad edit never reaches a running
// service.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	base := strings.TrimSpace(cfg.Remote.URL)
	if base == "" {
		return fmt.Errorf("remote.url is required")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("remote.url: not an http(s) URL: %q", base)
	}
	if _, err := ParseDurationField("remote.timeout", cfg.Remote.Timeout); err != nil {
		return err
	}

	if _, err := ParseDurationField("sync.foreground_interval", cfg.Sync.ForegroundInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("sync.background_interval", cfg.Sync.BackgroundInterval); err != nil {
		return err
	}

	if s := strings.TrimSpace(cfg.Reminders.Offset); s != "" {
		if _, err := reminders.ParseOffset(s); err != nil {
			return fmt.Errorf("reminders.offset: unknown value %q", cfg.Reminders.Offset)
		}
	}
	if strings.TrimSpace(cfg.Reminders.Employee) != "" && strings.TrimSpace(cfg.Reminders.ScheduleFile) == "" {
		return fmt.Errorf("reminders.schedule_file is required when reminders.employee is set")
	}

	if t := cfg.Notifications.Telegram; t != nil && t.Enabled {
		if strings.TrimSpace(t.Token) == "" {
			return fmt.Errorf("notifications.telegram.token is required when enabled")
		}
		if t.ChatID == 0 {
			return fmt.Errorf("notifications.telegram.chat_id is required when enabled")
		}
		if _, err := ParseDurationField("notifications.telegram.timeout", t.Timeout); err != nil {
			return err
		}
	}

	if r := cfg.Retention; r != nil {
		if _, err := ParseDurationField("retention.max_age", r.MaxAge); err != nil {
			return err
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
		}
		if d := strings.ToLower(strings.TrimSpace(s.Driver)); (d == "file" || d == "sqlite") && strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("storage.path is required for driver %q", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}

	return nil
}
