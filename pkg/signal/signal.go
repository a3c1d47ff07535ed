package signal

import "sync"

// Signal is a typed, synchronous fan-out point. Connect registers a
// handler; Fire invokes every registered handler in order on the calling
// goroutine. Fire does not recover handler panics — a handler bug is a
// programming error, not a runtime condition to swallow.
type Signal[T any] struct {
	mu       sync.Mutex
	handlers []func(T)
}

// Connect registers a handler, returning its index in the handler list.
// There is no way to disconnect a handler once registered.
func (s *Signal[T]) Connect(handler func(T)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
	return len(s.handlers) - 1
}

// Fire invokes every connected handler with the given value. The handler
// slice is copied under lock so a handler registering a new handler
// during Fire cannot deadlock or corrupt iteration.
func (s *Signal[T]) Fire(value T) {
	s.mu.Lock()
	handlers := make([]func(T), len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h(value)
	}
}

// Len reports the number of connected handlers, mainly for tests.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}
