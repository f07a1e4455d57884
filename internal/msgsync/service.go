// Package msgsync is the Background Sync Service: a single long-lived
// instance that polls the remote message store, computes this device's
// unread set, marks it read via targeted partial updates, and publishes
// "message.new" events for everything genuinely new.
//
// The remote store has no push channel, so detection is poll-based. The
// per-device readBy set is what makes delivery once-per-device: a message is
// "new" exactly until this device's read flag lands.
package msgsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"grafikd/internal/eventbus"
	"grafikd/internal/notify"
	"grafikd/internal/remote"
	"grafikd/internal/runtime/supervisor"
	"grafikd/pkg/logx"
)

var ErrNotRunning = errors.New("msgsync: not running")

// chatPreviewLimit truncates long texts in notification previews.
const chatPreviewLimit = 80

// Config controls poll cadence.
type Config struct {
	// ForegroundInterval is the tick period while active (default 3s).
	ForegroundInterval time.Duration
	// BackgroundInterval is the tick period while paused (default 10s).
	BackgroundInterval time.Duration
}

func (c *Config) defaults() {
	if c.ForegroundInterval <= 0 {
		c.ForegroundInterval = 3 * time.Second
	}
	if c.BackgroundInterval <= 0 {
		c.BackgroundInterval = 10 * time.Second
	}
}

// Source is the slice of the remote client the sync loop needs.
type Source interface {
	GetUnreadMessages(ctx context.Context, deviceID string) ([]remote.Message, error)
	MarkMessageRead(ctx context.Context, key, deviceID string) error
}

// Service is the Background Sync Service. Construct once in the composition
// root; Start is idempotent and Stop releases everything.
type Service struct {
	mu  sync.Mutex
	cfg Config

	deviceID  string
	bus       eventbus.Bus
	disp      *notify.Dispatcher
	newSource func(remoteURL string) Source

	log logx.Logger

	// Guarded by mu.
	running   bool
	paused    bool
	firstDone bool
	source    Source
	sup       *supervisor.Supervisor
}

func New(cfg Config, deviceID string, bus eventbus.Bus, disp *notify.Dispatcher, newSource func(remoteURL string) Source, log logx.Logger) *Service {
	cfg.defaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:       cfg,
		deviceID:  deviceID,
		bus:       bus,
		disp:      disp,
		newSource: newSource,
		log:       log.With(logx.String("comp", "msgsync")),
	}
}

// Apply updates the poll cadence. The new interval takes effect at the next
// tick boundary.
func (s *Service) Apply(cfg Config) {
	cfg.defaults()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Start begins polling the store at remoteURL. Calling Start while running
// is a no-op.
func (s *Service) Start(ctx context.Context, remoteURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Debug("already running")
		return
	}

	s.source = s.newSource(remoteURL)
	s.running = true
	s.paused = false
	s.firstDone = false
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))

	s.sup.GoRestart("poll", s.pollLoop)
	s.log.Info("background sync started", logx.String("url", remoteURL))
}

// Stop cancels the poll loop and releases resources. Safe to call twice.
func (s *Service) Stop() {
	s.mu.Lock()
	sup := s.sup
	wasRunning := s.running
	s.running = false
	s.paused = false
	s.sup = nil
	s.source = nil
	s.mu.Unlock()

	if sup != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = sup.Stop(ctx)
		cancel()
	}
	if wasRunning {
		s.log.Info("background sync stopped")
	}
}

// Pause slows polling to the background cadence (app went to background).
func (s *Service) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.paused {
		return
	}
	s.paused = true
	s.log.Debug("poll paused (background cadence)")
}

// Resume restores the foreground cadence.
func (s *Service) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || !s.paused {
		return
	}
	s.paused = false
	s.log.Debug("poll resumed (foreground cadence)")
}

// Running reports whether the poll loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// MarkAllAsRead bulk-acknowledges the current unread set without raising
// events. Used when the user opens the chat view.
func (s *Service) MarkAllAsRead(ctx context.Context) (int, error) {
	s.mu.Lock()
	src := s.source
	s.mu.Unlock()
	if src == nil {
		return 0, ErrNotRunning
	}

	unread, err := src.GetUnreadMessages(ctx, s.deviceID)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, m := range unread {
		if err := src.MarkMessageRead(ctx, m.Key, s.deviceID); err != nil {
			s.log.Warn("mark-as-read failed", logx.String("key", m.Key), logx.Err(err))
			continue
		}
		marked++
	}
	return marked, nil
}

// pollLoop is the single sequential poll task: wait, then work, so a tick is
// never re-entered while a previous one is still awaiting I/O. Pause/Stop
// only flip flags observed at the top of the loop; they never interrupt an
// in-flight request.
func (s *Service) pollLoop(ctx context.Context) error {
	s.log.Debug("poll loop started")
	for {
		s.mu.Lock()
		interval := s.cfg.ForegroundInterval
		if s.paused {
			interval = s.cfg.BackgroundInterval
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			s.log.Debug("poll loop cancelled")
			return nil
		case <-time.After(interval):
		}

		if err := s.tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// Transient failures ride the fixed cadence; no extra backoff.
			s.log.Warn("poll tick failed", logx.Err(err))
		}
	}
}

func (s *Service) tick(ctx context.Context) error {
	s.mu.Lock()
	src := s.source
	first := !s.firstDone
	s.mu.Unlock()
	if src == nil {
		return ErrNotRunning
	}

	unread, err := src.GetUnreadMessages(ctx, s.deviceID)
	if err != nil {
		// A failed fetch must not advance the first-tick state.
		return err
	}

	if first {
		return s.firstTick(ctx, src, unread)
	}

	for _, m := range unread {
		// Mark first, deliver after: the readBy flag is the per-device
		// dedup record, so an unmarked message is re-attempted next tick
		// rather than double-announced.
		if err := src.MarkMessageRead(ctx, m.Key, s.deviceID); err != nil {
			s.log.Warn("mark-as-read failed, will retry", logx.String("key", m.Key), logx.Err(err))
			continue
		}
		s.deliver(ctx, m)
	}
	return nil
}

// firstTick swallows the backlog: everything unread at startup predates this
// launch (or this install) and is acknowledged without events, preventing a
// notification flood. The suppression window stays open until one backlog
// pass completes with every mark applied.
func (s *Service) firstTick(ctx context.Context, src Source, unread []remote.Message) error {
	failed := 0
	for _, m := range unread {
		if err := src.MarkMessageRead(ctx, m.Key, s.deviceID); err != nil {
			failed++
			s.log.Warn("backlog mark-as-read failed", logx.String("key", m.Key), logx.Err(err))
		}
	}
	if failed > 0 {
		s.log.Warn("backlog acknowledgement incomplete, retrying next tick", logx.Int("failed", failed))
		return nil
	}

	s.mu.Lock()
	s.firstDone = true
	s.mu.Unlock()

	s.log.Info("initial backlog acknowledged", logx.Int("count", len(unread)))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeSyncStarted, Data: len(unread)})
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, m remote.Message) {
	s.log.Info("new message", logx.String("key", m.Key), logx.String("sender", m.Sender))

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeNewMessage, Data: eventbus.NewMessage{
			Key:        m.Key,
			SenderName: m.Sender,
			Text:       m.Text,
			Type:       m.Type,
		}})
	}
	if s.disp != nil {
		s.disp.ShowInstant(ctx, "💬 "+m.Sender, messagePreview(m), notify.ChannelChat)
	}
}

func messagePreview(m remote.Message) string {
	switch strings.ToLower(strings.TrimSpace(m.Type)) {
	case remote.TypeFile:
		return "📎 " + m.FileName
	case remote.TypeImage:
		if m.FileName != "" {
			return "🖼️ " + m.FileName
		}
		return "🖼️ Изображение"
	default:
		text := m.Text
		if len([]rune(text)) > chatPreviewLimit {
			return string([]rune(text)[:chatPreviewLimit]) + "..."
		}
		return text
	}
}
