package pool

import (
	"fmt"
	"unsafe"

	"github.com/vkngwrapper/stockpile"
)

// reservationSize returns the number of chunk bytes a T occupies, rounded up to the
// packing granularity. It panics for types a chunk can never hold: that constraint is
// statically known from the type alone, so hitting it is a caller bug rather than a
// runtime condition.
func reservationSize[T any]() int {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		panic(fmt.Sprintf("pool: %T is zero-sized and cannot be pooled", zero))
	}
	if size > ChunkPayload {
		panic(fmt.Sprintf("pool: %T is %d bytes, exceeding the %d-byte chunk payload", zero, size, ChunkPayload))
	}
	return stockpile.AlignUp(size, objectAlign)
}

// Make constructs a copy of value inside the pool and returns a pointer to it. The caller
// owns the object and must eventually pass the pointer to Release. Safe for concurrent use.
func Make[T any](p *Pool, value T) (*T, error) {
	size := reservationSize[T]()

	p.mu.Lock()
	defer p.mu.Unlock()
	addr, err := p.reserve(size)
	if err != nil {
		return nil, err
	}

	obj := (*T)(unsafe.Pointer(addr))
	*obj = value
	return obj, nil
}

// MakeShared constructs a copy of value inside the pool and returns a reference-counted
// handle to it. Releasing the last reference returns the object's bytes to the owning
// chunk. Safe for concurrent use.
func MakeShared[T any](p *Pool, value T) (*stockpile.Handle[T], error) {
	obj, err := Make(p, value)
	if err != nil {
		return nil, err
	}
	return stockpile.NewHandle(obj, func(o *T) {
		Release(p, o)
	}), nil
}

// Release returns an object obtained from Make to its pool. Releasing a pointer the pool
// does not own, or releasing twice, is a contract violation: it is checked by an assertion
// in debug builds and panics on the block lookup otherwise. Safe for concurrent use.
//
// The chunk lookup runs in its own critical section and reclamation re-acquires the lock,
// so a handle's last-reference release can safely re-enter this path.
func Release[T any](p *Pool, obj *T) {
	size := reservationSize[T]()
	addr := uintptr(unsafe.Pointer(obj))

	p.mu.Lock()
	stockpile.DebugAssert(p.blocks.Has(addr/BlockSize), "pool does not own pointer 0x%x", addr)
	chunkBase, ok := p.chunkOf(addr)
	p.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("pool: release of pointer 0x%x which this pool does not own", addr))
	}

	var zero T
	*obj = zero
	p.reclaim(chunkBase, size)
}
