package flat

import "github.com/vkngwrapper/stockpile"

// Iterator is a random-access cursor over the global index space of an Allocator. It maps
// its logical index to a physical slot pointer on demand and caches nothing, so it stays
// valid across block creation. It does not track liveness: dereferencing an erased slot is
// a caller bug, and iterations that interleave with erasure must filter through
// Heap.Contains themselves.
type Iterator[T any] struct {
	alloc *Allocator[T]
	index int
}

// NewIterator creates a cursor positioned at the given global index
func NewIterator[T any](alloc *Allocator[T], index int) Iterator[T] {
	return Iterator[T]{alloc: alloc, index: index}
}

// Index returns the cursor's position in the global index space
func (it Iterator[T]) Index() int {
	return it.index
}

// Get resolves the cursor to its physical slot
func (it Iterator[T]) Get() *T {
	return it.alloc.At(it.index)
}

// GetAt resolves the slot offset positions away from the cursor without moving it
func (it Iterator[T]) GetAt(offset int) *T {
	return it.alloc.At(it.index + offset)
}

// Next returns a cursor advanced by one position
func (it Iterator[T]) Next() Iterator[T] {
	return it.Add(1)
}

// Prev returns a cursor moved back by one position
func (it Iterator[T]) Prev() Iterator[T] {
	return it.Add(-1)
}

// Add returns a cursor moved forward by offset positions
func (it Iterator[T]) Add(offset int) Iterator[T] {
	return Iterator[T]{alloc: it.alloc, index: it.index + offset}
}

// Sub returns a cursor moved backward by offset positions
func (it Iterator[T]) Sub(offset int) Iterator[T] {
	return it.Add(-offset)
}

// Distance returns the number of positions between it and other. Both cursors must range
// over the same allocator instance.
func (it Iterator[T]) Distance(other Iterator[T]) int {
	stockpile.DebugAssert(it.alloc == other.alloc, "distance between iterators over different allocators")
	return it.index - other.index
}

// Equal reports whether both cursors address the same position of the same allocator
func (it Iterator[T]) Equal(other Iterator[T]) bool {
	return it.alloc == other.alloc && it.index == other.index
}

// Less reports whether it precedes other over the same allocator
func (it Iterator[T]) Less(other Iterator[T]) bool {
	return it.alloc == other.alloc && it.index < other.index
}
