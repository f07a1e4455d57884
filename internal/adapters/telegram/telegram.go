// Package telegram mirrors local notifications to a Telegram chat. It is a
// send-only bot: no poller, no incoming updates.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"grafikd/internal/notify"
	"grafikd/pkg/logx"
)

type Config struct {
	Token  string
	ChatID int64
	// Timeout bounds a single send (default 8s).
	Timeout time.Duration
}

// Sink forwards notifications to one Telegram chat. It satisfies
// notify.Sink.
type Sink struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

var _ notify.Sink = (*Sink)(nil)

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	// Send-only: telebot verifies the token via getMe and we never call
	// Start, so no poller is configured.
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Sink{bot: b, chatID: cfg.ChatID, log: log.With(logx.String("comp", "telegram"))}, nil
}

func (s *Sink) Name() string { return "telegram" }

func (s *Sink) Show(ctx context.Context, n notify.Notification) error {
	text := "<b>" + escape(n.Title) + "</b>"
	if n.Body != "" {
		text += "\n" + escape(n.Body)
	}
	_, err := s.bot.Send(&tele.Chat{ID: s.chatID}, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	s.log.Debug("notification mirrored", logx.Int32("id", n.ID))
	return nil
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
