// Package notify is the Notification Dispatcher: it owns the two logical
// notification channels, computes stable notification identifiers, gates
// every dispatch behind the permission checks, and fans the rendered
// notification out to the configured sinks.
//
// Permission denial and OS-level "notifications disabled" are expected
// steady states, not errors: a gated dispatch is logged and dropped, never
// surfaced to the caller. Sink failures are likewise swallowed after
// logging; delivery is best-effort by contract.
package notify
