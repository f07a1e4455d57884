package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"grafikd/pkg/logx"
)

// fileStore keeps all state in one JSON file, rewritten atomically
// (tmp + rename) on every mutation. State is small, so this is cheap.
type fileStore struct {
	mu   sync.Mutex
	path string
	log  logx.Logger

	state fileState
}

type fileState struct {
	DeviceID string           `json:"device_id,omitempty"`
	Tracked  TrackedReminders `json:"tracked"`
	Offset   string           `json:"reminder_offset,omitempty"`
	HasOff   bool             `json:"has_offset,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("file storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	st := &fileStore{path: cfg.Path, log: log}

	b, err := os.ReadFile(cfg.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh install.
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(b, &st.state); err != nil {
			// A corrupt state file means we lose the tracking set; the
			// cancel-all-then-reschedule-all pass rebuilds it.
			log.Warn("state file unreadable, starting fresh", logx.String("path", cfg.Path), logx.Err(err))
			st.state = fileState{}
		}
	}
	return st, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) DeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.DeviceID != "" {
		return s.state.DeviceID, nil
	}
	s.state.DeviceID = uuid.NewString()
	if err := s.writeLocked(); err != nil {
		s.state.DeviceID = ""
		return "", err
	}
	s.log.Info("generated device id", logx.String("device_id", s.state.DeviceID))
	return s.state.DeviceID, nil
}

func (s *fileStore) TrackedReminders(ctx context.Context) (TrackedReminders, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.state.Tracked
	t.IDs = append([]int32(nil), t.IDs...)
	return t, nil
}

func (s *fileStore) SaveTrackedReminders(ctx context.Context, t TrackedReminders) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state.Tracked
	s.state.Tracked = TrackedReminders{Employee: t.Employee, IDs: append([]int32(nil), t.IDs...)}
	if err := s.writeLocked(); err != nil {
		s.state.Tracked = prev
		return err
	}
	return nil
}

func (s *fileStore) ReminderOffset(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Offset, s.state.HasOff, nil
}

func (s *fileStore) PutReminderOffset(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevV, prevOK := s.state.Offset, s.state.HasOff
	s.state.Offset, s.state.HasOff = value, true
	if err := s.writeLocked(); err != nil {
		s.state.Offset, s.state.HasOff = prevV, prevOK
		return err
	}
	return nil
}

func (s *fileStore) writeLocked() error {
	b, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
