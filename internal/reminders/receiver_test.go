package reminders

import (
	"context"
	"sync"
	"testing"

	"grafikd/internal/alarms"
	"grafikd/internal/notify"
	"grafikd/pkg/logx"
)

type captureSink struct {
	mu    sync.Mutex
	shown []notify.Notification
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Show(ctx context.Context, n notify.Notification) error {
	c.mu.Lock()
	c.shown = append(c.shown, n)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) last(t *testing.T) notify.Notification {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.shown) == 0 {
		t.Fatal("no notification shown")
	}
	return c.shown[len(c.shown)-1]
}

func TestDeliveryHandlerShowsPayload(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	disp := notify.NewDispatcher(notify.Config{}, notify.AllowAll(), logx.Nop(), sink)
	h := NewDeliveryHandler(disp, logx.Nop())

	h(alarms.Payload{ID: 42, Title: "Смена: Дневная", Body: "скоро", Channel: notify.ChannelShift})

	n := sink.last(t)
	if n.ID != 42 || n.Title != "Смена: Дневная" || n.Body != "скоро" {
		t.Fatalf("shown = %+v", n)
	}
	if n.Channel.ID != notify.ChannelShift {
		t.Fatalf("channel = %q", n.Channel.ID)
	}
}

func TestDeliveryHandlerDefaults(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	disp := notify.NewDispatcher(notify.Config{}, notify.AllowAll(), logx.Nop(), sink)
	h := NewDeliveryHandler(disp, logx.Nop())

	h(alarms.Payload{}) // everything blank

	n := sink.last(t)
	if n.Title != "Напоминание" || n.Body != "Скоро смена!" {
		t.Fatalf("defaults not applied: %+v", n)
	}
	if n.Channel.ID != notify.ChannelShift {
		t.Fatalf("blank channel must default to shift, got %q", n.Channel.ID)
	}
	if n.ID < 1000 || n.ID > 9999 {
		t.Fatalf("fallback id = %d, want 1000..9999", n.ID)
	}
}

func TestDeliveryHandlerPermissionDenied(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	disp := notify.NewDispatcher(notify.Config{}, notify.StaticPermissions{Granted: false}, logx.Nop(), sink)
	h := NewDeliveryHandler(disp, logx.Nop())

	// Denial is a logged drop, never a panic or error.
	h(alarms.Payload{ID: 7, Title: "x", Body: "y"})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.shown) != 0 {
		t.Fatalf("notification delivered despite denied permission: %+v", sink.shown)
	}
}
