/*
Package storage provides BoltDB-backed persistence for the state that must
survive a restart: downtimes, acknowledgements, notification bookkeeping
and each cluster endpoint's replication log position.

Live check state (Checkable.State, Attempt, FlappingScore, ...) lives only
in internal/registry; this package is not a write-behind cache for it, it
is the record of durable objects and facts an operator configured or the
notification engine is tracking, mirroring the durable subset of Icinga2's
own state file (icinga2.state) plus its replay-log position bookkeeping
(original_source/test/remote-jsonrpcconnection.cpp's
GetRemoteLogPosition()/SetRemoteLogPosition() cursor on Endpoint).

Each bucket stores JSON-encoded values keyed by object ID, the same shape
the rest of this corpus uses BoltDB for: one bucket per object kind, ACID
transactions, no external database dependency.
*/
package storage
