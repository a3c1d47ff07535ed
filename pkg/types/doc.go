/*
Package types defines the core data structures shared across the check
engine, the notification engine, the cluster transport and the perfdata
writers.

These are plain data types with no behavior beyond small helpers
(Checkable.ID, NotificationBitmask.Has/Set/Clear, Downtime.Active,
Acknowledgement.Suppresses, TimePeriod.IsInside, ...); the state-machine logic that mutates them lives in
internal/checkresult, internal/notification and internal/scheduler so that
concurrency and locking concerns stay out of the data model.
*/
package types
