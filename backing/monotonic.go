package backing

import (
	"sync"
	"unsafe"

	"github.com/vkngwrapper/stockpile"
)

// minSlabBytes is the smallest slab the monotonic resource will request from the Go heap.
// Larger block requests get a slab sized to fit.
const minSlabBytes = 1 << 20

// Monotonic is a non-reclaiming Resource: it carves aligned blocks out of large slabs
// obtained from the Go heap and never returns anything until the resource itself becomes
// unreachable. FreeBlock is a no-op, so memory handed out through a Monotonic resource is
// leak-until-release by design. It is safe for concurrent use and is intended to be shared
// across many engine instances.
//
// Slabs are plain byte slices; the garbage collector scans them as pointer-free data.
// Objects constructed into them must not be the only thing keeping a Go-heap referent
// alive; see the package documentation of pool and flat.
type Monotonic struct {
	mu    sync.Mutex
	slabs [][]byte
	next  uintptr
	end   uintptr

	slabBytes  int
	blockCount int
}

// Shared is the default backing resource, shared by every engine that is not given an
// explicit one.
var Shared = &Monotonic{}

func (m *Monotonic) AllocateBlock(size int, align uintptr) (uintptr, error) {
	if err := checkBlockArgs(size, align); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	base := stockpile.AlignDownAddr(m.next+align-1, align)
	if base+uintptr(size) > m.end {
		m.grow(size, align)
		base = stockpile.AlignDownAddr(m.next+align-1, align)
	}

	m.next = base + uintptr(size)
	m.blockCount++
	return base, nil
}

// FreeBlock is a no-op: the monotonic resource never reclaims
func (m *Monotonic) FreeBlock(base uintptr, size int) {
}

// grow appends a slab large enough to hold one aligned block of the requested size
func (m *Monotonic) grow(size int, align uintptr) {
	slabSize := size + int(align)
	if slabSize < minSlabBytes {
		slabSize = minSlabBytes
	}
	slab := make([]byte, slabSize)
	m.slabs = append(m.slabs, slab)
	m.slabBytes += slabSize
	m.next = uintptr(unsafe.Pointer(&slab[0]))
	m.end = m.next + uintptr(slabSize)
}

// SlabBytes returns the total number of bytes held by the resource's slabs
func (m *Monotonic) SlabBytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slabBytes
}

// BlockCount returns the number of blocks ever handed out
func (m *Monotonic) BlockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockCount
}
