package config

import (
	"reflect"
	"sort"
	"strings"

	"grafikd/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact sorted list of changed
// sections and (2) safe structured attrs for logging. Secrets (the Telegram
// token) are never included, only whether one is set.
//
// The section names drive the app's reload routing: "sync" re-applies
// cadence, "reminders" triggers a full reschedule, "logging" re-applies the
// log sinks.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if strings.TrimSpace(oldCfg.Remote.URL) != strings.TrimSpace(newCfg.Remote.URL) ||
		strings.TrimSpace(oldCfg.Remote.Timeout) != strings.TrimSpace(newCfg.Remote.Timeout) {
		changed = append(changed, "remote")
		attrs = append(attrs,
			logx.String("remote.url", strings.TrimSpace(newCfg.Remote.URL)),
			logx.String("remote.timeout", strings.TrimSpace(newCfg.Remote.Timeout)),
		)
	}

	if strings.TrimSpace(oldCfg.Sync.ForegroundInterval) != strings.TrimSpace(newCfg.Sync.ForegroundInterval) ||
		strings.TrimSpace(oldCfg.Sync.BackgroundInterval) != strings.TrimSpace(newCfg.Sync.BackgroundInterval) {
		changed = append(changed, "sync")
		attrs = append(attrs,
			logx.String("sync.foreground_interval", strings.TrimSpace(newCfg.Sync.ForegroundInterval)),
			logx.String("sync.background_interval", strings.TrimSpace(newCfg.Sync.BackgroundInterval)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.String("reminders.employee", strings.TrimSpace(newCfg.Reminders.Employee)),
			logx.String("reminders.offset", strings.TrimSpace(newCfg.Reminders.Offset)),
			logx.Bool("reminders.exact_alarms", newCfg.Reminders.ExactAlarms),
		)
	}

	// Notifications (never log token)
	oN, nN := oldCfg.Notifications, newCfg.Notifications
	notifChanged := oN.NotificationsEnabled() != nN.NotificationsEnabled() ||
		oN.RatePerSec != nN.RatePerSec ||
		strings.TrimSpace(oN.TapAction) != strings.TrimSpace(nN.TapAction) ||
		telegramSinkChanged(oN.Telegram, nN.Telegram)
	if notifChanged {
		changed = append(changed, "notifications")
		attrs = append(attrs,
			logx.Bool("notifications.enabled", nN.NotificationsEnabled()),
			logx.Int("notifications.rate_per_sec", nN.RatePerSec),
			logx.Bool("notifications.telegram_enabled", nN.Telegram != nil && nN.Telegram.Enabled),
		)
	}

	if retentionChanged(oldCfg.Retention, newCfg.Retention) {
		changed = append(changed, "retention")
		r := newCfg.Retention
		if r == nil {
			r = &RetentionConfig{}
		}
		attrs = append(attrs,
			logx.Bool("retention.enabled", r.Enabled),
			logx.String("retention.schedule", strings.TrimSpace(r.Schedule)),
			logx.String("retention.max_age", strings.TrimSpace(r.MaxAge)),
		)
	}

	if storageChanged(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		s := newCfg.Storage
		if s == nil {
			s = &StorageConfig{}
		}
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(s.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(s.Path) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func telegramSinkChanged(o, n *TelegramSinkConfig) bool {
	if (o == nil) != (n == nil) {
		return true
	}
	if o == nil {
		return false
	}
	return o.Enabled != n.Enabled ||
		o.ChatID != n.ChatID ||
		strings.TrimSpace(o.Timeout) != strings.TrimSpace(n.Timeout) ||
		strings.TrimSpace(o.Token) != strings.TrimSpace(n.Token)
}

func retentionChanged(o, n *RetentionConfig) bool {
	if (o == nil) != (n == nil) {
		return true
	}
	if o == nil {
		return false
	}
	return *o != *n
}

func storageChanged(o, n *StorageConfig) bool {
	// Nil means disabled.
	var od, nd, ob, nb string
	var op, np bool
	if o != nil {
		od, ob, op = strings.TrimSpace(o.Driver), strings.TrimSpace(o.BusyTimeout), strings.TrimSpace(o.Path) != ""
	}
	if n != nil {
		nd, nb, np = strings.TrimSpace(n.Driver), strings.TrimSpace(n.BusyTimeout), strings.TrimSpace(n.Path) != ""
	}
	return od != nd || ob != nb || op != np
}
