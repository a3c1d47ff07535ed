/*
Package signal provides a minimal typed-callback bus, used in place of
an arbitrary-subscriber global signals design: each Signal[T] holds a
slice of handler funcs
invoked synchronously, in registration order, under whatever lock the
emitter already holds. Callers document that lock at the call site; the
bus itself holds only its own mutex around the handler slice, never
across a Fire call.
*/
package signal
