package reminders

import (
	"fmt"
	"time"
)

// Offset is the selected reminder lead time: how long before shift start the
// notification fires. A closed enumeration: every use site switches
// exhaustively so a new variant fails to compile until handled.
type Offset int

const (
	FiveMinutesBefore    Offset = 5
	FifteenMinutesBefore Offset = 15
	ThirtyMinutesBefore  Offset = 30
	OneHourBefore        Offset = 60
	TwoHoursBefore       Offset = 120
	OneDayBefore         Offset = 1440
)

// DefaultOffset matches the original app's fallback.
const DefaultOffset = ThirtyMinutesBefore

// Offsets lists the valid variants in display order.
func Offsets() []Offset {
	return []Offset{
		FiveMinutesBefore,
		FifteenMinutesBefore,
		ThirtyMinutesBefore,
		OneHourBefore,
		TwoHoursBefore,
		OneDayBefore,
	}
}

// Duration converts the offset to a lead duration. Unknown values fall back
// to the 30-minute default rather than failing; a stale persisted value must
// not break scheduling.
func (o Offset) Duration() time.Duration {
	switch o {
	case FiveMinutesBefore:
		return 5 * time.Minute
	case FifteenMinutesBefore:
		return 15 * time.Minute
	case ThirtyMinutesBefore:
		return 30 * time.Minute
	case OneHourBefore:
		return time.Hour
	case TwoHoursBefore:
		return 2 * time.Hour
	case OneDayBefore:
		return 24 * time.Hour
	default:
		return DefaultOffset.Duration()
	}
}

// DisplayName renders the human-facing label.
func (o Offset) DisplayName() string {
	switch o {
	case FiveMinutesBefore:
		return "За 5 минут"
	case FifteenMinutesBefore:
		return "За 15 минут"
	case ThirtyMinutesBefore:
		return "За 30 минут"
	case OneHourBefore:
		return "За 1 час"
	case TwoHoursBefore:
		return "За 2 часа"
	case OneDayBefore:
		return "За 1 день"
	default:
		return DefaultOffset.DisplayName()
	}
}

// String is the stable persistence/config token for the offset.
func (o Offset) String() string {
	switch o {
	case FiveMinutesBefore:
		return "5m"
	case FifteenMinutesBefore:
		return "15m"
	case ThirtyMinutesBefore:
		return "30m"
	case OneHourBefore:
		return "1h"
	case TwoHoursBefore:
		return "2h"
	case OneDayBefore:
		return "1d"
	default:
		return DefaultOffset.String()
	}
}

// ParseOffset parses a persistence/config token produced by String.
func ParseOffset(s string) (Offset, error) {
	for _, o := range Offsets() {
		if s == o.String() {
			return o, nil
		}
	}
	return 0, fmt.Errorf("reminders: unknown offset %q", s)
}

// FireTime is the pure reminder-time calculator:
// fireTime = shiftStart - offset. Strictly monotonic in shiftStart for a
// fixed offset, strictly decreasing in offset for a fixed shiftStart.
func FireTime(shiftStart time.Time, offset Offset) time.Time {
	return shiftStart.Add(-offset.Duration())
}
