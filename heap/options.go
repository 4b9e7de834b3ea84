package heap

import "github.com/rs/zerolog"

// Option is a configuration function for a Heap.
type Option func(*Heap)

// WithLogger sets the logger used for collection and scope diagnostics. The
// default logger discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Heap) {
		h.logger = logger
	}
}

// WithObserver sets an observer for allocation and collection events.
//
// Observer methods are called synchronously on the allocating goroutine, so
// implementations should be fast and must not call back into the heap.
func WithObserver(observer Observer) Option {
	return func(h *Heap) {
		h.observer = observer
	}
}

// WithStressCollect runs a full collection before every allocation. This is
// slow and intended for tests that look for missing roots or incomplete
// Trace implementations.
func WithStressCollect() Option {
	return func(h *Heap) {
		h.stressCollect = true
	}
}
