/*
Package notification is the notification engine: for
every (checkable, notification) pair, turns a state-change or flapping
event into zero or more outbound sends, gated by type/state/user filter,
begin/end attempt window, timeperiod, and downtime/acknowledgement/
flapping suppression (internal/checkresult.IsSuppressed).

A timeperiod-closed event is deferred into the notification's
suppressed-notifications bitmask rather than dropped; a periodic tick
(driven by internal/timer, following the same ticker-loop shape as
pkg/scheduler/scheduler.go) re-evaluates the ledger against the
checkable's *current* state once the timeperiod reopens, and separately
drives reminder-cadence resends for ongoing problems.
*/
package notification
