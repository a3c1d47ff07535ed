/*
Package scheduler is the check-scheduling layer: it walks
the registry for checkables whose NextCheck has arrived, partitions
ownership across a zone's endpoints by deterministic hashing rather than
consensus, and dispatches each due check either to a local executor or
to its configured command endpoint over the cluster transport.

Grounded on pkg/scheduler/scheduler.go's ticker-driven cycle (fetch
candidates under a lock, act, log and continue past per-item errors,
since adapted away in favor of this package) and
original_source/test/checker-fixture.cpp/.hpp's RegisterRemoteChecks
fixture, the original's own test scaffold for a checkable whose command
endpoint may or may not currently be connected.
*/
package scheduler
