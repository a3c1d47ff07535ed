/*
Package events implements the broker behind the facade's event-stream
subscription endpoint: a topic-agnostic, best-effort fan-out of
cluster-level events (state changes, notifications sent, endpoint
connect/disconnect) to external subscribers such as CLI "--watch" clients.

It is deliberately simple: non-blocking publish, per-subscriber buffered
channels, full buffers drop rather than block. pkg/signal is a separate,
synchronous bus whose handlers run in-line on the caller's goroutine;
nothing in this module connects to it.
*/
package events
