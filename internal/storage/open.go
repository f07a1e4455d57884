package storage

import (
	"context"
	"errors"
	"strings"

	"grafikd/pkg/logx"
)

// Store is the minimal persistence API used by the engine.
type Store interface {
	// DeviceID returns the install-scoped device id, generating and
	// persisting a fresh one on first call.
	DeviceID(ctx context.Context) (string, error)

	TrackedReminders(ctx context.Context) (TrackedReminders, error)
	// SaveTrackedReminders replaces the whole tracking set atomically.
	SaveTrackedReminders(ctx context.Context, t TrackedReminders) error

	ReminderOffset(ctx context.Context) (value string, ok bool, err error)
	PutReminderOffset(ctx context.Context, value string) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
