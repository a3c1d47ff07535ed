/*
Package checkresult is the result processor: applies one
CheckResult at a time to its checkable under the registry's per-object
lock, runs the soft/hard state machine, maintains the flapping window,
applies downtime/acknowledgement suppression, and propagates reachability
to dependents.

Grounded on pkg/scheduler/scheduler.go's ticker-driven, lock-scoped
mutation style (its schedule() method), generalized from placement
accounting to check state accounting; the state machine rules themselves
follow the Icinga2 soft/hard state contract directly since no
original_source/ file implements this algorithm standalone (it is inlined across several Checkable::*
methods there).
*/
package checkresult
