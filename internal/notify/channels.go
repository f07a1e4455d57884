package notify

import "time"

// Channel ids. Exactly these two channels exist.
const (
	ChannelChat  = "chat_messages"
	ChannelShift = "shift_reminders"
)

// Importance levels mirror the platform notion; both channels are high.
const (
	ImportanceDefault = "default"
	ImportanceHigh    = "high"
)

// ChannelConfig describes one logical notification channel.
type ChannelConfig struct {
	ID          string
	Name        string
	Description string
	Importance  string
	Vibration   []time.Duration
	Badge       bool
}

// vibrationPattern is the shared delay/vibrate pattern for both channels.
var vibrationPattern = []time.Duration{
	0,
	250 * time.Millisecond,
	250 * time.Millisecond,
	250 * time.Millisecond,
}

func builtinChannels() []ChannelConfig {
	return []ChannelConfig{
		{
			ID:          ChannelShift,
			Name:        "Напоминания о сменах",
			Description: "Уведомления о предстоящих сменах",
			Importance:  ImportanceHigh,
			Vibration:   vibrationPattern,
			Badge:       true,
		},
		{
			ID:          ChannelChat,
			Name:        "Сообщения чата",
			Description: "Уведомления о новых сообщениях в чате",
			Importance:  ImportanceHigh,
			Vibration:   vibrationPattern,
			Badge:       true,
		},
	}
}
