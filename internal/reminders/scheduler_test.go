package reminders

import (
	"sync"
	"testing"
	"time"

	"grafikd/internal/alarms"
	"grafikd/internal/eventbus"
	"grafikd/internal/notify"
	"grafikd/pkg/logx"
)

type fakeAlarms struct {
	mu        sync.Mutex
	armed     map[int32]alarms.Alarm
	cancelled []int32
}

func newFakeAlarms() *fakeAlarms {
	return &fakeAlarms{armed: map[int32]alarms.Alarm{}}
}

func (f *fakeAlarms) Schedule(a alarms.Alarm) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[a.ID] = a
	return nil
}

func (f *fakeAlarms) Cancel(id int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armed, id)
	f.cancelled = append(f.cancelled, id)
}

func (f *fakeAlarms) CancelAll(ids []int32) {
	for _, id := range ids {
		f.Cancel(id)
	}
}

func (f *fakeAlarms) CanScheduleExact() bool { return true }

func (f *fakeAlarms) armedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.armed)
}

func (f *fakeAlarms) armedAlarm(id int32) (alarms.Alarm, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.armed[id]
	return a, ok
}

// fixedNow is 2024-03-10 06:00 UTC; the canonical test shift starts at 09:00
// the same day.
var fixedNow = time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)

func newTestScheduler(fa *fakeAlarms, bus eventbus.Bus) *Scheduler {
	s := NewScheduler(fa, nil, bus, logx.Nop())
	s.now = func() time.Time { return fixedNow }
	return s
}

func dayShift(employee string) ShiftEntry {
	return ShiftEntry{
		Employee: employee,
		Date:     time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Shift:    "Дневная",
		Worktime: "09:00-21:00",
	}
}

func TestScheduleShiftReminder(t *testing.T) {
	t.Parallel()

	fa := newFakeAlarms()
	s := newTestScheduler(fa, nil)
	e := dayShift("Иванов")

	if err := s.ScheduleShiftReminder(e, ThirtyMinutesBefore); err != nil {
		t.Fatalf("ScheduleShiftReminder: %v", err)
	}

	wantFire := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)
	start, _ := ParseWorktimeStart(e.Worktime)
	wantID := notify.StableID(e.NotificationTitle(), e.NotificationBody(start), wantFire)

	a, ok := fa.armedAlarm(wantID)
	if !ok {
		t.Fatalf("alarm %d not armed", wantID)
	}
	if !a.FireAt.Equal(wantFire) {
		t.Fatalf("FireAt = %v, want %v", a.FireAt, wantFire)
	}
	if !a.Exact {
		t.Fatal("shift reminders must request exact delivery")
	}
	if a.Payload.Channel != notify.ChannelShift {
		t.Fatalf("channel = %q", a.Payload.Channel)
	}
	if a.Payload.Title != "Смена: Дневная" {
		t.Fatalf("title = %q", a.Payload.Title)
	}

	ids, err := s.TrackedIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != wantID {
		t.Fatalf("tracked = %v, want [%d]", ids, wantID)
	}

	// Same entry again: supersedes at the timer, tracked once.
	if err := s.ScheduleShiftReminder(e, ThirtyMinutesBefore); err != nil {
		t.Fatal(err)
	}
	if fa.armedCount() != 1 {
		t.Fatalf("armed = %d after duplicate schedule", fa.armedCount())
	}
	if ids, _ := s.TrackedIDs(); len(ids) != 1 {
		t.Fatalf("tracked = %v after duplicate schedule", ids)
	}
}

func TestScheduleSkips(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*ShiftEntry)
		offset Offset
	}{
		{"blank worktime", func(e *ShiftEntry) { e.Worktime = "  " }, ThirtyMinutesBefore},
		{"blank shift label", func(e *ShiftEntry) { e.Shift = "" }, ThirtyMinutesBefore},
		{"unparseable worktime", func(e *ShiftEntry) { e.Worktime = "выходной" }, ThirtyMinutesBefore},
		{"shift more than a day old", func(e *ShiftEntry) {
			e.Date = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
		}, ThirtyMinutesBefore},
		{"fire time already passed", func(e *ShiftEntry) {
			// Shift at 06:15, offset 30m: fire 05:45 < now 06:00.
			e.Worktime = "06:15-18:15"
		}, ThirtyMinutesBefore},
		{"started night shift within grace", func(e *ShiftEntry) {
			// Started 21:00 the previous day: inside the 24h grace window,
			// but the fire time is long past.
			e.Date = time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
			e.Worktime = "21:00-09:00"
			e.Shift = "Ночная"
		}, ThirtyMinutesBefore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fa := newFakeAlarms()
			s := newTestScheduler(fa, nil)
			e := dayShift("Иванов")
			tc.mutate(&e)

			if err := s.ScheduleShiftReminder(e, tc.offset); err != nil {
				t.Fatalf("skip must be a silent no-op, got %v", err)
			}
			if fa.armedCount() != 0 {
				t.Fatal("alarm armed for a skipped entry")
			}
			if ids, _ := s.TrackedIDs(); len(ids) != 0 {
				t.Fatalf("tracked = %v for a skipped entry", ids)
			}
		})
	}
}

func TestCancelShiftReminder(t *testing.T) {
	t.Parallel()

	fa := newFakeAlarms()
	s := newTestScheduler(fa, nil)
	e := dayShift("Иванов")

	// Cancel before any schedule: no-op.
	if err := s.CancelShiftReminder(e, ThirtyMinutesBefore); err != nil {
		t.Fatalf("cancel of unarmed reminder: %v", err)
	}

	if err := s.ScheduleShiftReminder(e, ThirtyMinutesBefore); err != nil {
		t.Fatal(err)
	}
	if err := s.CancelShiftReminder(e, ThirtyMinutesBefore); err != nil {
		t.Fatal(err)
	}
	if fa.armedCount() != 0 {
		t.Fatal("alarm still armed after cancel")
	}
	if ids, _ := s.TrackedIDs(); len(ids) != 0 {
		t.Fatalf("tracked = %v after cancel", ids)
	}
}

func TestCancelPastEntryStillComputesID(t *testing.T) {
	t.Parallel()

	fa := newFakeAlarms()
	s := newTestScheduler(fa, nil)

	// An entry whose fire time slid into the past: plan() skips it, but
	// cancel must still derive the id and issue the timer cancel.
	e := dayShift("Иванов")
	e.Worktime = "06:15-18:15"

	if err := s.CancelShiftReminder(e, ThirtyMinutesBefore); err != nil {
		t.Fatal(err)
	}
	fa.mu.Lock()
	cancelled := len(fa.cancelled)
	fa.mu.Unlock()
	if cancelled != 1 {
		t.Fatalf("cancel calls = %d, want 1", cancelled)
	}
}

func TestCancelAllShiftReminders(t *testing.T) {
	t.Parallel()

	fa := newFakeAlarms()
	s := newTestScheduler(fa, nil)

	schedule := []ShiftEntry{dayShift("Иванов")}
	next := dayShift("Иванов")
	next.Date = next.Date.AddDate(0, 0, 1)
	schedule = append(schedule, next)

	if _, err := s.RescheduleAllForEmployee("Иванов", schedule, ThirtyMinutesBefore); err != nil {
		t.Fatal(err)
	}
	if fa.armedCount() != 2 {
		t.Fatalf("armed = %d, want 2", fa.armedCount())
	}

	if err := s.CancelAllShiftReminders(); err != nil {
		t.Fatal(err)
	}
	if fa.armedCount() != 0 {
		t.Fatal("alarms still armed after cancel-all")
	}
	if ids, _ := s.TrackedIDs(); len(ids) != 0 {
		t.Fatalf("tracked = %v after cancel-all", ids)
	}
	if emp, _ := s.ScheduledEmployee(); emp != "" {
		t.Fatalf("employee marker = %q after cancel-all", emp)
	}

	// Idempotent.
	if err := s.CancelAllShiftReminders(); err != nil {
		t.Fatal(err)
	}
}

func TestRescheduleAllForEmployee(t *testing.T) {
	t.Parallel()

	fa := newFakeAlarms()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	s := newTestScheduler(fa, bus)

	// Pre-existing reminders for a different employee must be flushed.
	if err := s.ScheduleShiftReminder(dayShift("Петров"), ThirtyMinutesBefore); err != nil {
		t.Fatal(err)
	}

	other := dayShift("Петров")
	other.Date = other.Date.AddDate(0, 0, 2)
	past := dayShift("Иванов")
	past.Date = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tomorrow := dayShift("иванов") // case-insensitive match
	tomorrow.Date = tomorrow.Date.AddDate(0, 0, 1)
	schedule := []ShiftEntry{dayShift("Иванов"), tomorrow, other, past}

	n, err := s.RescheduleAllForEmployee("Иванов", schedule, OneHourBefore)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("armed = %d, want 2 (today + tomorrow)", n)
	}
	if fa.armedCount() != 2 {
		t.Fatalf("timer count = %d, want 2", fa.armedCount())
	}
	if emp, _ := s.ScheduledEmployee(); emp != "Иванов" {
		t.Fatalf("employee marker = %q", emp)
	}

	select {
	case e := <-events:
		if e.Type != eventbus.TypeRemindersRescheduled {
			t.Fatalf("event = %q", e.Type)
		}
	default:
		t.Fatal("expected reschedule event")
	}

	// A second pass with the same input is a clean rebuild, not growth.
	if n, err = s.RescheduleAllForEmployee("Иванов", schedule, OneHourBefore); err != nil || n != 2 {
		t.Fatalf("second pass = (%d, %v)", n, err)
	}
	if fa.armedCount() != 2 {
		t.Fatalf("timer count after rebuild = %d", fa.armedCount())
	}
}

func TestStableIDCollisionKeepsOneAlarm(t *testing.T) {
	t.Parallel()

	fa := newFakeAlarms()
	s := newTestScheduler(fa, nil)

	// Two entries rendering identical title, body, and minute share an id;
	// the second supersedes the first at the timer level.
	a := dayShift("Иванов")
	b := dayShift("Иванов")

	n, err := s.RescheduleAllForEmployee("Иванов", []ShiftEntry{a, b}, ThirtyMinutesBefore)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("armed = %d, want 1 (collision supersedes)", n)
	}
	if fa.armedCount() != 1 {
		t.Fatalf("timer count = %d, want 1", fa.armedCount())
	}
}
