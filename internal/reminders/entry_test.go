package reminders

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStartAt(t *testing.T) {
	t.Parallel()

	e := ShiftEntry{
		Employee: "Иванов",
		Date:     time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Shift:    "Дневная",
		Worktime: "09:00-21:00",
	}
	got, ok := e.StartAt()
	if !ok {
		t.Fatal("StartAt failed on a valid entry")
	}
	want := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("StartAt = %v, want %v", got, want)
	}

	e.Worktime = "n/a"
	if _, ok := e.StartAt(); ok {
		t.Fatal("StartAt succeeded on garbage worktime")
	}
}

func TestNotificationText(t *testing.T) {
	t.Parallel()

	start := StartTime{Hour: 9, Minute: 0}
	cases := []struct {
		shift string
		want  string
	}{
		{"Ночная", "Иванов, ночная смена начинается в 09:00"},
		{"Дневная", "Иванов, дневная смена начинается в 09:00"},
		{"2-я линия", "Иванов, смена начинается в 09:00"},
	}
	for _, tc := range cases {
		e := ShiftEntry{Employee: "Иванов", Shift: tc.shift}
		if got := e.NotificationBody(start); got != tc.want {
			t.Errorf("body for %q = %q, want %q", tc.shift, got, tc.want)
		}
		if got := e.NotificationTitle(); got != "Смена: "+tc.shift {
			t.Errorf("title for %q = %q", tc.shift, got)
		}
	}
}

func TestLoadSchedule(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.json")
	body := `[
  {"employee": "Иванов", "date": "2024-03-10T00:00:00Z", "shift": "Дневная", "worktime": "09:00-21:00"},
  {"employee": "Петров", "date": "2024-03-10T00:00:00Z", "shift": "Ночная", "worktime": "21:00-09:00", "is_second_line": true}
]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := LoadSchedule(path)
	if err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Employee != "Иванов" || !entries[1].IsSecondLine {
		t.Fatalf("entries = %+v", entries)
	}

	if _, err := LoadSchedule(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSchedule(bad); err == nil || !strings.Contains(err.Error(), "decode schedule") {
		t.Fatalf("LoadSchedule(bad) = %v", err)
	}
}
