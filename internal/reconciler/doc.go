// Package reconciler periodically sweeps registered checkables for state
// that the event-driven paths don't otherwise revisit: fixed downtimes
// whose end time has passed. It writes nothing to the durable store.
// The ticker-driven run loop is
// adapted from pkg/reconciler's node/container reconciliation cycle.
package reconciler
