package reminders

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"grafikd/internal/alarms"
	"grafikd/internal/notify"
	"grafikd/pkg/logx"
)

// Fallback content for a payload that arrived empty or truncated.
const (
	defaultTitle = "Напоминание"
	defaultBody  = "Скоро смена!"
)

// NewDeliveryHandler builds the alarm delivery callback.
//
// The handler is a message-passing boundary: the timer subsystem invokes it
// with only the payload attached at schedule time, possibly with no other
// part of the engine resident in memory. It reconstructs the notification
// entirely from that payload, substituting defaults for anything missing,
// and never fails.
func NewDeliveryHandler(disp *notify.Dispatcher, log logx.Logger) alarms.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "alarm_receiver"))

	return func(p alarms.Payload) {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			title = defaultTitle
		}
		body := strings.TrimSpace(p.Body)
		if body == "" {
			body = defaultBody
		}
		channel := p.Channel
		if channel == "" {
			channel = notify.ChannelShift
		}
		id := p.ID
		if id == 0 {
			id = int32(1000 + rand.Intn(9000))
		}

		// Channels must exist before showing; cheap and idempotent.
		disp.EnsureChannels()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		shown := disp.Show(ctx, id, title, body, channel)
		if shown {
			log.Info("reminder delivered", logx.Int32("id", id), logx.String("title", title))
		} else {
			log.Warn("reminder suppressed by permission gate", logx.Int32("id", id))
		}
	}
}
