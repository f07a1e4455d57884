// Package alarms abstracts the OS wake-up timer subsystem.
//
// The Reminder Scheduler owns no goroutines of its own: it hands armed
// reminders to a Manager, and the Manager invokes the registered Handler on
// its own execution context when a timer fires. The Handler receives only
// the payload attached at schedule time; it must never assume shared memory
// with the scheduler (on a phone the hosting process may have been killed
// in between).
//
// Nothing is re-armed automatically after a restart: the tracking set in
// storage exists only for bulk cancellation bookkeeping, and the application
// re-arms everything via a full reschedule pass at next start.
package alarms

import (
	"errors"
	"sync"
	"time"

	"grafikd/pkg/logx"
)

// Payload is the self-contained notification content attached to an alarm.
// All fields may be blank; the delivery handler substitutes defaults.
type Payload struct {
	ID      int32  `json:"id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Channel string `json:"channel"`
}

// Alarm is one armed wake-up timer.
type Alarm struct {
	ID      int32
	FireAt  time.Time
	Exact   bool // request exact delivery; degraded if not permitted
	Payload Payload
}

// Handler is invoked when an alarm fires. It runs on the manager's own
// goroutine and must be safe to call with no other engine state resident.
type Handler func(p Payload)

// Manager arms and cancels wake-up timers.
//
// Schedule with an already-armed ID supersedes the previous timer (this is
// what makes stable-id re-scheduling idempotent at the OS level). Cancel of
// an unknown ID is a no-op, not an error.
type Manager interface {
	Schedule(a Alarm) error
	Cancel(id int32)
	CancelAll(ids []int32)
	CanScheduleExact() bool
}

var ErrStopped = errors.New("alarms: manager stopped")

// inexactWindow batches non-exact alarms: a degraded alarm fires at the next
// window boundary at or after its requested time.
const inexactWindow = 10 * time.Minute

// TimerManager is the in-process Manager backed by time.Timer. On Android
// this role is played by AlarmManager; the contract (supersede on same id,
// no-op cancel, handler isolation) is the same.
type TimerManager struct {
	mu      sync.Mutex
	timers  map[int32]*time.Timer
	handler Handler
	exactOK bool
	stopped bool

	log logx.Logger
	now func() time.Time
}

func NewTimerManager(handler Handler, exactAllowed bool, log logx.Logger) *TimerManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TimerManager{
		timers:  map[int32]*time.Timer{},
		handler: handler,
		exactOK: exactAllowed,
		log:     log.With(logx.String("comp", "alarms")),
		now:     time.Now,
	}
}

func (m *TimerManager) CanScheduleExact() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exactOK
}

// SetExactAllowed flips the exact-alarm capability (permission granted or
// revoked at runtime). Already-armed timers are unaffected.
func (m *TimerManager) SetExactAllowed(ok bool) {
	m.mu.Lock()
	m.exactOK = ok
	m.mu.Unlock()
}

func (m *TimerManager) Schedule(a Alarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}

	fireAt := a.FireAt
	if a.Exact && !m.exactOK {
		fireAt = batchToWindow(fireAt)
		m.log.Warn("exact alarms not permitted, degrading to batched delivery",
			logx.Int32("id", a.ID), logx.Time("requested", a.FireAt), logx.Time("batched", fireAt))
	}

	delay := fireAt.Sub(m.now())
	if delay < 0 {
		delay = 0
	}

	// Supersede an already-armed timer with the same id.
	if t, ok := m.timers[a.ID]; ok {
		t.Stop()
	}

	id, payload := a.ID, a.Payload
	m.timers[id] = time.AfterFunc(delay, func() { m.fire(id, payload) })
	m.log.Debug("alarm armed", logx.Int32("id", id), logx.Time("fire_at", fireAt), logx.Bool("exact", a.Exact && m.exactOK))
	return nil
}

func (m *TimerManager) Cancel(id int32) {
	m.mu.Lock()
	t, ok := m.timers[id]
	if ok {
		delete(m.timers, id)
	}
	m.mu.Unlock()
	if ok {
		t.Stop()
		m.log.Debug("alarm cancelled", logx.Int32("id", id))
	}
}

// CancelAll cancels every id in the batch. Unknown ids are skipped.
func (m *TimerManager) CancelAll(ids []int32) {
	for _, id := range ids {
		m.Cancel(id)
	}
}

// Stop cancels all armed timers and rejects further scheduling.
func (m *TimerManager) Stop() {
	m.mu.Lock()
	m.stopped = true
	timers := m.timers
	m.timers = map[int32]*time.Timer{}
	m.mu.Unlock()
	for _, t := range timers {
		t.Stop()
	}
}

func (m *TimerManager) fire(id int32, p Payload) {
	m.mu.Lock()
	delete(m.timers, id)
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("alarm handler panicked", logx.Int32("id", id), logx.Any("panic", r))
		}
	}()
	h(p)
}

func batchToWindow(t time.Time) time.Time {
	return t.Truncate(inexactWindow).Add(inexactWindow)
}
