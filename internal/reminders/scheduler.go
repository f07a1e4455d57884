package reminders

import (
	"context"
	"strings"
	"sync"
	"time"

	"grafikd/internal/alarms"
	"grafikd/internal/eventbus"
	"grafikd/internal/notify"
	"grafikd/internal/storage"
	"grafikd/pkg/logx"
)

// pastShiftGrace tolerates cross-midnight night shifts that already started:
// a shift whose start is less than one day old is still eligible for
// bookkeeping, only its (necessarily past) fire time skips it.
const pastShiftGrace = 24 * time.Hour

// Scheduler converts shift entries into armed wake-up timers and keeps the
// persisted tracking set in step with them.
//
// The tracking-set invariant (set == armed timers) is maintained by
// construction, never by diffing: any doubt is resolved with a full
// cancel-all-then-reschedule-all pass.
type Scheduler struct {
	mu     sync.Mutex
	alarms alarms.Manager
	store  storage.Store
	bus    eventbus.Bus

	log logx.Logger
	now func() time.Time

	// mem carries the tracking set when storage is disabled.
	mem storage.TrackedReminders
}

func NewScheduler(am alarms.Manager, store storage.Store, bus eventbus.Bus, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		alarms: am,
		store:  store,
		bus:    bus,
		log:    log.With(logx.String("comp", "reminders")),
		now:    time.Now,
	}
}

// plannedReminder is the precomputed identity and content of one reminder.
type plannedReminder struct {
	id      int32
	fireAt  time.Time
	payload alarms.Payload
}

// plan computes the reminder for an entry, or ok=false when the entry is
// skipped (blank fields, unparseable worktime, shift too old, fire time
// already passed). Skips are silent no-ops per the engine contract.
func (s *Scheduler) plan(e ShiftEntry, offset Offset) (plannedReminder, bool) {
	if strings.TrimSpace(e.Worktime) == "" || strings.TrimSpace(e.Shift) == "" {
		s.log.Debug("skipping entry without worktime or shift label", logx.String("employee", e.Employee))
		return plannedReminder{}, false
	}
	start, ok := ParseWorktimeStart(e.Worktime)
	if !ok {
		s.log.Warn("unparseable worktime, entry skipped",
			logx.String("employee", e.Employee), logx.String("worktime", e.Worktime))
		return plannedReminder{}, false
	}
	shiftStart, _ := e.StartAt()

	now := s.now()
	if !shiftStart.After(now.Add(-pastShiftGrace)) {
		s.log.Debug("shift too far in the past", logx.Time("shift_start", shiftStart))
		return plannedReminder{}, false
	}

	fireAt := FireTime(shiftStart, offset)
	if !fireAt.After(now) {
		s.log.Debug("fire time already passed",
			logx.Time("fire_at", fireAt), logx.Time("shift_start", shiftStart))
		return plannedReminder{}, false
	}

	title := e.NotificationTitle()
	body := e.NotificationBody(start)
	id := notify.StableID(title, body, fireAt)
	return plannedReminder{
		id:     id,
		fireAt: fireAt,
		payload: alarms.Payload{
			ID:      id,
			Title:   title,
			Body:    body,
			Channel: notify.ChannelShift,
		},
	}, true
}

// ScheduleShiftReminder arms one reminder for the entry at the given offset.
// Entries in the past are a silent no-op.
func (s *Scheduler) ScheduleShiftReminder(e ShiftEntry, offset Offset) error {
	p, ok := s.plan(e, offset)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.alarms.Schedule(alarms.Alarm{ID: p.id, FireAt: p.fireAt, Exact: true, Payload: p.payload}); err != nil {
		return err
	}

	t, err := s.trackedLocked()
	if err != nil {
		return err
	}
	if !t.Contains(p.id) {
		t.IDs = append(t.IDs, p.id)
		if err := s.saveTrackedLocked(t); err != nil {
			return err
		}
	}
	s.log.Info("reminder armed",
		logx.Int32("id", p.id),
		logx.Time("fire_at", p.fireAt),
		logx.String("employee", e.Employee),
		logx.String("offset", offset.String()))
	return nil
}

// CancelShiftReminder disarms the reminder the entry and offset would have
// produced. A reminder that was never armed is a no-op.
func (s *Scheduler) CancelShiftReminder(e ShiftEntry, offset Offset) error {
	p, ok := s.plan(e, offset)
	if !ok {
		// Recompute without the time guards: an entry that slid into the
		// past may still have an armed timer from an earlier pass.
		start, pok := ParseWorktimeStart(e.Worktime)
		if !pok {
			return nil
		}
		shiftStart, _ := e.StartAt()
		fireAt := FireTime(shiftStart, offset)
		p = plannedReminder{id: notify.StableID(e.NotificationTitle(), e.NotificationBody(start), fireAt)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.alarms.Cancel(p.id)

	t, err := s.trackedLocked()
	if err != nil {
		return err
	}
	kept := t.IDs[:0]
	for _, id := range t.IDs {
		if id != p.id {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(t.IDs) {
		return nil
	}
	t.IDs = kept
	return s.saveTrackedLocked(t)
}

// CancelAllShiftReminders disarms every tracked reminder and clears the set
// and the employee marker. Idempotent; ids the timer subsystem no longer
// knows are not an error.
func (s *Scheduler) CancelAllShiftReminders() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelAllLocked()
}

func (s *Scheduler) cancelAllLocked() error {
	t, err := s.trackedLocked()
	if err != nil {
		return err
	}
	for _, id := range t.IDs {
		s.alarms.Cancel(id)
	}
	if len(t.IDs) > 0 || t.Employee != "" {
		s.log.Info("cancelled all reminders", logx.Int("count", len(t.IDs)), logx.String("employee", t.Employee))
	}
	return s.saveTrackedLocked(storage.TrackedReminders{})
}

// RescheduleAllForEmployee is the only supported way to apply a changed
// schedule or reminder preference: cancel everything, persist the new owner,
// then schedule the employee's entries from the snapshot. Returns the number
// of reminders armed.
func (s *Scheduler) RescheduleAllForEmployee(employee string, schedule []ShiftEntry, offset Offset) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cancelAllLocked(); err != nil {
		return 0, err
	}

	t := storage.TrackedReminders{Employee: employee}
	if err := s.saveTrackedLocked(t); err != nil {
		return 0, err
	}

	for _, e := range schedule {
		if !strings.EqualFold(strings.TrimSpace(e.Employee), strings.TrimSpace(employee)) {
			continue
		}
		p, ok := s.plan(e, offset)
		if !ok {
			continue
		}
		if err := s.alarms.Schedule(alarms.Alarm{ID: p.id, FireAt: p.fireAt, Exact: true, Payload: p.payload}); err != nil {
			s.log.Warn("arming reminder failed", logx.Int32("id", p.id), logx.Err(err))
			continue
		}
		if !t.Contains(p.id) {
			t.IDs = append(t.IDs, p.id)
		}
	}
	armed := len(t.IDs)
	if err := s.saveTrackedLocked(t); err != nil {
		return armed, err
	}

	s.log.Info("rescheduled reminders",
		logx.String("employee", employee),
		logx.Int("armed", armed),
		logx.String("offset", offset.String()))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRemindersRescheduled, Data: map[string]any{
			"employee": employee,
			"armed":    armed,
		}})
	}
	return armed, nil
}

// ScheduledEmployee returns the employee the current tracking set belongs to.
func (s *Scheduler) ScheduledEmployee() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.trackedLocked()
	if err != nil {
		return "", err
	}
	return t.Employee, nil
}

// TrackedIDs returns a copy of the current tracking set.
func (s *Scheduler) TrackedIDs() ([]int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.trackedLocked()
	if err != nil {
		return nil, err
	}
	return append([]int32(nil), t.IDs...), nil
}

func (s *Scheduler) trackedLocked() (storage.TrackedReminders, error) {
	if s.store == nil {
		t := s.mem
		t.IDs = append([]int32(nil), t.IDs...)
		return t, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.store.TrackedReminders(ctx)
}

func (s *Scheduler) saveTrackedLocked(t storage.TrackedReminders) error {
	if s.store == nil {
		s.mem = storage.TrackedReminders{Employee: t.Employee, IDs: append([]int32(nil), t.IDs...)}
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.store.SaveTrackedReminders(ctx, t)
}
