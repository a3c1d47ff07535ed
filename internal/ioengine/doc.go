/*
Package ioengine is the process-wide I/O core: a bounded
admission semaphore that separates CPU-bound work (parsing a check
command's output, evaluating a threshold) from the I/O-bound goroutines
that wait on sockets, pipes and timers, plus a small cooperative task
runtime built on context.Context cancellation.

Grounded on original_source/lib/base/io-engine.hpp: CpuBoundWork and
IoBoundWorkSlot are scope-guards around a single process-wide semaphore
that admits CPU-bound sections proportional to runtime.NumCPU(); Go has
no cooperative coroutines to yield from, so the semaphore here gates
goroutines directly rather than resuming an asio::yield_context.
*/
package ioengine
