package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"grafikd/pkg/logx"
)

// Config controls the dispatcher.
type Config struct {
	// RatePerSec bounds how many notifications may be shown per second
	// (storm guard for busy chats). <= 0 defaults to 3.
	RatePerSec int
	// TapAction is the deep link attached to every notification.
	TapAction string
}

// Dispatcher renders and shows notifications.
//
// Safe for concurrent use. Construct once in the composition root and share.
type Dispatcher struct {
	mu       sync.Mutex
	cfg      Config
	channels map[string]ChannelConfig
	sinks    []Sink
	perms    Permissions
	limiter  *rate.Limiter

	log logx.Logger
	now func() time.Time
}

func NewDispatcher(cfg Config, perms Permissions, log logx.Logger, sinks ...Sink) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if perms == nil {
		perms = AllowAll()
	}
	d := &Dispatcher{
		perms: perms,
		log:   log.With(logx.String("comp", "notify")),
		sinks: sinks,
		now:   time.Now,
	}
	d.applyLocked(cfg)
	return d
}

func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	d.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't drop too hard.
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// EnsureChannels registers the two logical channels. Idempotent and safe to
// call on every cold start, including from the alarm delivery handler with
// no other engine state resident.
func (d *Dispatcher) EnsureChannels() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.channels != nil {
		return
	}
	d.channels = map[string]ChannelConfig{}
	for _, ch := range builtinChannels() {
		d.channels[ch.ID] = ch
	}
	d.log.Debug("notification channels created", logx.Int("count", len(d.channels)))
}

// Channel returns the config for a channel id, falling back to the shift
// channel for unknown ids (the delivery handler may carry a stale id).
func (d *Dispatcher) Channel(id string) ChannelConfig {
	d.EnsureChannels()
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[id]; ok {
		return ch
	}
	return d.channels[ChannelShift]
}

// ShowInstant shows an immediate notification (chat channel unless told
// otherwise). Gate failures and sink errors are logged and swallowed: the
// returned bool only says whether the dispatch passed the permission gate,
// and exists for the caller's own logging.
func (d *Dispatcher) ShowInstant(ctx context.Context, title, body, channelID string) bool {
	if channelID == "" {
		channelID = ChannelChat
	}
	n := Notification{ID: InstantID(title, body, d.now()), Title: title, Body: body, Channel: d.Channel(channelID)}
	return d.show(ctx, n)
}

// Show displays a notification whose identity was fixed at schedule time.
func (d *Dispatcher) Show(ctx context.Context, id int32, title, body, channelID string) bool {
	n := Notification{ID: id, Title: title, Body: body, Channel: d.Channel(channelID)}
	return d.show(ctx, n)
}

func (d *Dispatcher) show(ctx context.Context, n Notification) bool {
	d.EnsureChannels()

	if !d.perms.PostGranted() {
		d.log.Warn("notification dropped: post permission not granted", logx.Int32("id", n.ID))
		return false
	}
	if !d.perms.NotificationsEnabled() {
		d.log.Warn("notification dropped: notifications disabled at OS level", logx.Int32("id", n.ID))
		return false
	}

	d.mu.Lock()
	lim := d.limiter
	tap := d.cfg.TapAction
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.Unlock()

	if n.Channel.ID == "" {
		n.Channel = d.Channel(ChannelChat)
	}
	n.TapAction = tap

	if lim != nil && !lim.Allow() {
		d.log.Warn("notification dropped: rate limited", logx.Int32("id", n.ID), logx.String("channel", n.Channel.ID))
		return false
	}

	for _, s := range sinks {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("sink panicked", logx.String("sink", s.Name()), logx.Any("panic", r))
				}
			}()
			return s.Show(sctx, n)
		}()
		cancel()
		if err != nil {
			d.log.Warn("sink delivery failed", logx.String("sink", s.Name()), logx.Int32("id", n.ID), logx.Err(err))
		}
	}
	return true
}
