/*
Package metrics registers the process's Prometheus collectors and exposes
the scrape handler. All metrics are package-level vars registered in
init(), following the same convention across the scheduler, result
processor, notification engine and perfdata writers: instrument at the
call site with Timer/ObserveDuration, never thread a registry handle
through every function signature.
*/
package metrics
