// Package retention prunes old messages from the remote store on a cron
// schedule. Pinned messages survive every sweep.
package retention

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"grafikd/pkg/logx"
)

const (
	// DefaultSchedule runs the sweep nightly at 04:00.
	DefaultSchedule = "0 4 * * *"
	// DefaultMaxAge matches the store's 30-day retention window.
	DefaultMaxAge = 30 * 24 * time.Hour

	sweepTimeout = 2 * time.Minute
)

// Cleaner is the slice of the remote client the sweep needs.
type Cleaner interface {
	CleanupOldMessages(ctx context.Context, retention time.Duration) (int, error)
}

type Config struct {
	Enabled  bool
	Schedule string
	MaxAge   time.Duration
}

func (c *Config) defaults() {
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
}

// Service owns the cron runner. Start/Stop are idempotent.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	cleaner Cleaner
	parser  cron.Parser
	log     logx.Logger

	c *cron.Cron
}

func New(cfg Config, cleaner Cleaner, log logx.Logger) *Service {
	cfg.defaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		cleaner: cleaner,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		log:    log.With(logx.String("comp", "retention")),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Debug("retention sweep disabled")
		return nil
	}

	c := cron.New(cron.WithParser(s.parser))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("retention: bad schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.c = c
	s.log.Info("retention sweep scheduled",
		logx.String("schedule", s.cfg.Schedule),
		logx.Duration("max_age", s.cfg.MaxAge))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("retention sweep stopped")
}

// SweepNow runs one sweep immediately, outside the schedule.
func (s *Service) SweepNow(ctx context.Context) (int, error) {
	s.mu.Lock()
	maxAge := s.cfg.MaxAge
	s.mu.Unlock()
	return s.cleaner.CleanupOldMessages(ctx, maxAge)
}

func (s *Service) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in retention sweep", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	start := time.Now()
	deleted, err := s.SweepNow(ctx)
	if err != nil {
		s.log.Warn("retention sweep failed", logx.Err(err))
		return
	}
	s.log.Info("retention sweep done",
		logx.Int("deleted", deleted),
		logx.Duration("took", time.Since(start)))
}
