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

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"grafikd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const (
	metaDeviceID = "device_id"
	metaEmployee = "scheduled_employee"
	metaOffset   = "reminder_offset"
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

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

func (s *sqliteStore) DeviceID(ctx context.Context) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrDisabled
	}
	id, ok, err := s.getMeta(ctx, metaDeviceID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.putMeta(ctx, metaDeviceID, id); err != nil {
		return "", err
	}
	s.log.Info("generated device id", logx.String("device_id", id))
	return id, nil
}

func (s *sqliteStore) TrackedReminders(ctx context.Context) (TrackedReminders, error) {
	if s == nil || s.db == nil {
		return TrackedReminders{}, ErrDisabled
	}
	var t TrackedReminders
	emp, _, err := s.getMeta(ctx, metaEmployee)
	if err != nil {
		return TrackedReminders{}, err
	}
	t.Employee = emp

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM reminder_ids ORDER BY id`)
	if err != nil {
		return TrackedReminders{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return TrackedReminders{}, err
		}
		t.IDs = append(t.IDs, id)
	}
	return t, rows.Err()
}

func (s *sqliteStore) SaveTrackedReminders(ctx context.Context, t TrackedReminders) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminder_ids`); err != nil {
		return err
	}
	for _, id := range t.IDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO reminder_ids(id) VALUES(?)`, id); err != nil {
			return err
		}
	}
	if strings.TrimSpace(t.Employee) == "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, metaEmployee); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
			metaEmployee, t.Employee); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ReminderOffset(ctx context.Context) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, ErrDisabled
	}
	return s.getMeta(ctx, metaOffset)
}

func (s *sqliteStore) PutReminderOffset(ctx context.Context, value string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return s.putMeta(ctx, metaOffset, value)
}

func (s *sqliteStore) getMeta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *sqliteStore) putMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value)
	return err
}
