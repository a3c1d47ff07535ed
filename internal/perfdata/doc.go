/*
Package perfdata is the perfdata writer framework: each
writer owns a bounded priority work queue, a long-lived output
connection, and a single worker task that drains the queue and flushes
to an external sink.

ReconnectingSink is grounded on
original_source/lib/perfdata/perfdatawriterconnection.hpp/.cpp: a Send
that transparently reconnects on error, a Stopped sentinel once
Pause()/Disconnect() has been called, and a bounded drain on pause. The
concrete sinks (line.go, http.go, otlp.go) follow the
per-protocol writer shape of
original_source/lib/perfdata/graphitewriter.hpp,
influxdb2writer.hpp/.cpp and otlpmetricswriter.hpp.
*/
package perfdata
