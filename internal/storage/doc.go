// Package storage persists the small amount of engine state that must
// survive process restarts:
//
//   - the device id (created once per install, the dedup key in readBy)
//   - the tracking set of armed reminder ids plus the employee it belongs to
//   - the selected reminder offset
//
// The tracking set is always written as a whole; the Reminder Scheduler is
// its only writer, so no finer-grained locking is needed.
package storage
