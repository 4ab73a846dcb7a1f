package stockpile

import "sync/atomic"

// Handle is a reference-counted owner of an object constructed inside one of this module's
// engines. When the last reference is released, the handle runs the release callback it was
// created with, which destroys the object and returns its storage to the engine that produced
// it. A Handle must not outlive its engine.
//
// Handles begin with a single reference. Retain and Release may be called from any goroutine;
// the release callback runs exactly once, on the goroutine that dropped the final reference.
type Handle[T any] struct {
	ptr     *T
	refs    int32
	release func(*T)
}

// NewHandle wraps an already-constructed object in a handle with one outstanding reference.
// The release callback must capture the owning engine by value or identity, never through
// state that the engine may invalidate before the last release.
func NewHandle[T any](ptr *T, release func(*T)) *Handle[T] {
	return &Handle[T]{
		ptr:     ptr,
		refs:    1,
		release: release,
	}
}

// Get returns the owned object. The handle must still hold at least one reference.
func (h *Handle[T]) Get() *T {
	DebugAssert(atomic.LoadInt32(&h.refs) > 0, "get on a handle whose references were all released")
	return h.ptr
}

// Refs returns the current reference count
func (h *Handle[T]) Refs() int {
	return int(atomic.LoadInt32(&h.refs))
}

// Retain adds a reference and returns the same handle for convenience
func (h *Handle[T]) Retain() *Handle[T] {
	refs := atomic.AddInt32(&h.refs, 1)
	if refs < 2 {
		panic("retain on a handle whose references were all released")
	}
	return h
}

// Release drops one reference. Dropping the final reference destroys the owned object
// through the engine that constructed it.
func (h *Handle[T]) Release() {
	refs := atomic.AddInt32(&h.refs, -1)
	if refs < 0 {
		panic("handle released more times than it was retained")
	}
	if refs == 0 {
		h.release(h.ptr)
		h.ptr = nil
		h.release = nil
	}
}
