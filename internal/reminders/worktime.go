package reminders

import (
	"strings"
)

// StartTime is the parsed beginning of a work-time range.
type StartTime struct {
	Hour   int
	Minute int
}

// ParseWorktimeStart extracts the shift start from a work-time range string
// like "08:00-20:00". The first field before the separator is the start;
// accepted forms are "HH:mm", "H:mm", "HHmm" and "Hmm". The second return
// value is false for anything unparseable; callers skip the entry rather
// than treating it as an error.
func ParseWorktimeStart(raw string) (StartTime, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return StartTime{}, false
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return StartTime{}, false
	}

	var hStr, mStr string
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hStr, mStr = s[:i], s[i+1:]
	} else {
		// Compact form: minutes are always the last two digits.
		if len(s) < 3 || len(s) > 4 {
			return StartTime{}, false
		}
		hStr, mStr = s[:len(s)-2], s[len(s)-2:]
	}

	h, ok := parseDigits(hStr, 1, 2)
	if !ok || h > 23 {
		return StartTime{}, false
	}
	m, ok := parseDigits(mStr, 2, 2)
	if !ok || m > 59 {
		return StartTime{}, false
	}
	return StartTime{Hour: h, Minute: m}, true
}

func parseDigits(s string, minLen, maxLen int) (int, bool) {
	if len(s) < minLen || len(s) > maxLen {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
