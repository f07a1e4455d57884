package notify

import (
	"context"

	"grafikd/pkg/logx"
)

// Notification is one rendered notification handed to sinks.
type Notification struct {
	ID      int32
	Title   string
	Body    string
	Channel ChannelConfig

	// TapAction is the deep link opened when the user taps the
	// notification (the app's main entry point).
	TapAction string
}

// Sink delivers a rendered notification somewhere the user can see it.
// Sinks are best-effort: errors are logged by the dispatcher and swallowed.
type Sink interface {
	Name() string
	Show(ctx context.Context, n Notification) error
}

// LogSink writes notifications to the structured log. It is always
// registered so a headless deployment keeps a visible delivery trail.
type LogSink struct {
	Log logx.Logger
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Show(ctx context.Context, n Notification) error {
	s.Log.Info("notification",
		logx.Int32("id", n.ID),
		logx.String("channel", n.Channel.ID),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
	)
	return nil
}
