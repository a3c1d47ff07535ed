/*
Package timer implements the shared monotonic timer wheel: a single
ordered index over TimerEntry values keyed by NextFire,
guarded by one mutex and one condition variable, with a dedicated worker
goroutine that dispatches due entries to a bounded goroutine pool rather
than running callbacks on the wheel's own goroutine.

Grounded on original_source/lib/base/timer.hpp/.cpp: Interval, Next,
Started/Running flags, Reschedule and AdjustTimers are the same contract,
translated from a boost::signals2 callback into an explicit Go func.
*/
package timer
