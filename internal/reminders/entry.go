package reminders

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// ShiftEntry is one row of the imported employee schedule. Produced by the
// spreadsheet import pipeline; the engine treats each scheduling pass's
// snapshot as immutable. Entries carry no stable identifier of their own,
// which is why reschedules are always full rebuilds.
type ShiftEntry struct {
	Employee     string    `json:"employee"`
	Date         time.Time `json:"date"`
	Shift        string    `json:"shift"`    // label: Дневная, Ночная, Выходной, ...
	Worktime     string    `json:"worktime"` // "HH:mm-HH:mm"
	IsSecondLine bool      `json:"is_second_line,omitempty"`
}

// StartAt combines the entry date with its parsed work-time start.
func (e ShiftEntry) StartAt() (time.Time, bool) {
	st, ok := ParseWorktimeStart(e.Worktime)
	if !ok {
		return time.Time{}, false
	}
	d := e.Date
	return time.Date(d.Year(), d.Month(), d.Day(), st.Hour, st.Minute, 0, 0, d.Location()), true
}

// NotificationTitle renders the reminder title for this entry.
func (e ShiftEntry) NotificationTitle() string {
	return "Смена: " + e.Shift
}

// NotificationBody renders the reminder body, worded by shift kind.
func (e ShiftEntry) NotificationBody(start StartTime) string {
	at := fmt.Sprintf("%02d:%02d", start.Hour, start.Minute)
	label := strings.ToLower(e.Shift)
	switch {
	case strings.Contains(label, "ноч"):
		return fmt.Sprintf("%s, ночная смена начинается в %s", e.Employee, at)
	case strings.Contains(label, "днев"):
		return fmt.Sprintf("%s, дневная смена начинается в %s", e.Employee, at)
	default:
		return fmt.Sprintf("%s, смена начинается в %s", e.Employee, at)
	}
}

// LoadSchedule reads a schedule snapshot file (JSON array of ShiftEntry)
// written by the import pipeline.
func LoadSchedule(path string) ([]ShiftEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []ShiftEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("reminders: decode schedule %s: %w", path, err)
	}
	return entries, nil
}
