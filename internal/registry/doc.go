/*
Package registry is the object registry and dependency graph: a
process-wide, read/write-lock-guarded map of live objects plus the
weak back-reference indexes a reference-counted source would maintain
with raw pointers (checkable → notifications, parent → dependents).

Ownership is parent-to-child only (a Checkable owns its Notifications and
Downtimes); everything else is a named back-index maintained alongside
the owning map under the same lock, so a single Remove call updates both
directions atomically — see the design notes on reference-counted object
graphs with weak back-references.

Each Checkable gets its own entry-level mutex (CheckableEntry.mu): the
registry lock only ever guards the top-level maps, never the fields of
an individual checkable, so a long-running check never blocks unrelated
lookups.
*/
package registry
