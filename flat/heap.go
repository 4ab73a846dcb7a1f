package flat

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/stockpile"
	"github.com/vkngwrapper/stockpile/backing"
)

// initialPresenceBits is the starting capacity of a heap's presence vector
const initialPresenceBits = 4096

// Heap composes an Allocator with a bit-presence vector and a monotonically increasing
// issued-slot counter, exposing sparse storage addressed by dense indices. Erasing never
// shrinks or compacts the index space: iteration spans the full issued range and callers
// must filter erased indices through Contains themselves.
type Heap[T any] struct {
	size  int
	used  stockpile.BitVector
	alloc *Allocator[T]
}

var _ stockpile.Validatable = &Heap[int]{}

// NewHeap creates an empty Heap. A nil resource falls back to the shared monotonic backing
// resource. Types larger than the block budget are rejected here, before any slot exists.
func NewHeap[T any](resource backing.Resource) (*Heap[T], error) {
	alloc, err := NewAllocator[T](resource)
	if err != nil {
		return nil, err
	}
	return &Heap[T]{
		used:  stockpile.NewBitVector(initialPresenceBits),
		alloc: alloc,
	}, nil
}

// Emplace assigns the next issued index, marks it live and constructs a copy of value in
// storage obtained from the allocator.
//
// The issued index coincides with the physical slot index only while nothing has ever been
// erased: the allocator's reuse cursor can hand back an earlier recycled slot while the
// issued counter only grows, so after any erase-then-emplace cycle the two index spaces
// diverge and At(Size()-1) need not address the object just emplaced. Deliberately kept;
// see TestHeapIndexDivergence.
func (h *Heap[T]) Emplace(value T) (*T, error) {
	ptr, err := h.alloc.Allocate()
	if err != nil {
		return nil, err
	}
	*ptr = value

	index := h.size
	for index >= h.used.Size() {
		h.used.Resize(h.used.Size() * 2)
	}
	h.used.Set(index)
	h.size++
	return ptr, nil
}

// MakeShared emplaces a copy of value and wraps it in a reference-counted handle whose
// last release erases the object from this heap
func (h *Heap[T]) MakeShared(value T) (*stockpile.Handle[T], error) {
	ptr, err := h.Emplace(value)
	if err != nil {
		return nil, err
	}
	return stockpile.NewHandle(ptr, func(p *T) {
		h.Erase(p)
	}), nil
}

// Erase returns ptr's slot to the allocator and clears its presence bit. The issued count
// never decreases.
func (h *Heap[T]) Erase(ptr *T) {
	h.eraseAt(ptr, h.alloc.IndexOf(ptr))
}

// EraseAt erases the slot at the given index
func (h *Heap[T]) EraseAt(index int) {
	h.eraseAt(h.alloc.At(index), index)
}

func (h *Heap[T]) eraseAt(ptr *T, index int) {
	stockpile.DebugAssert(h.Contains(index), "erase of index %d which is not live", index)
	h.alloc.Deallocate(ptr)
	h.used.Unset(index)
}

// Get resolves an index to its slot without checking liveness; reading an erased slot is a
// caller bug
func (h *Heap[T]) Get(index int) *T {
	return h.alloc.At(index)
}

// Contains reports whether the slot at index is live
func (h *Heap[T]) Contains(index int) bool {
	if index < 0 || index >= h.used.Size() {
		return false
	}
	return h.used.Test(index)
}

// Size returns the number of slots ever issued, erased ones included
func (h *Heap[T]) Size() int {
	return h.size
}

// Clear erases everything and resets the issued count to zero
func (h *Heap[T]) Clear() error {
	h.used = stockpile.NewBitVector(initialPresenceBits)
	h.size = 0
	return h.alloc.Clear()
}

// Begin returns a cursor at index zero
func (h *Heap[T]) Begin() Iterator[T] {
	return NewIterator(h.alloc, 0)
}

// End returns a cursor one past the last issued index
func (h *Heap[T]) End() Iterator[T] {
	return NewIterator(h.alloc, h.size)
}

// Validate performs internal consistency checks on the heap and its allocator
func (h *Heap[T]) Validate() error {
	if h.used.Count() > h.size {
		return errors.New("heap has more live presence bits than issued slots")
	}
	return h.alloc.Validate()
}

// AddStatistics sums the heap's allocator counters into stats
func (h *Heap[T]) AddStatistics(stats *stockpile.Statistics) {
	h.alloc.AddStatistics(stats)
}

// AddDetailedStatistics sums the heap's allocator counters and free extents into stats
func (h *Heap[T]) AddDetailedStatistics(stats *stockpile.DetailedStatistics) {
	h.alloc.AddDetailedStatistics(stats)
}

// BuildStatsJson populates a json object with the heap's issued range and allocator detail
func (h *Heap[T]) BuildStatsJson(json jwriter.ObjectState) {
	json.Name("IssuedSlots").Int(h.size)
	json.Name("LiveSlots").Int(h.used.Count())

	allocJson := json.Name("Allocator").Object()
	h.alloc.BuildStatsJson(allocJson)
	allocJson.End()
}
