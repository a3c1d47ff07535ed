// Package facade is the single synchronous entry point external callers
// (the CLI, an HTTP API client) use to drive the core: process a check
// result, manage downtimes and acknowledgements, force a reschedule, send
// a custom notification, or query/subscribe to object state. It carries
// no scheduling or notification logic of its own — every call translates
// directly into the same operations internal/scheduler and
// internal/notification use internally, authenticated and
// permission-checked the way ApiUser gates remote API calls in
// httpserverconnection.cpp/apifunction.cpp.
package facade
