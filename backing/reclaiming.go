package backing

import (
	"sync"
	"unsafe"

	"github.com/vkngwrapper/stockpile"
)

// Reclaiming is a Resource that backs every block with its own Go-heap buffer and tracks
// which blocks are live. It exists mostly so tests (and callers that want leak accounting)
// can substitute a resource whose FreeBlock is observable, in contrast to Monotonic.
//
// Freed buffers are quarantined rather than released: a block address, once handed out, is
// never reused for the lifetime of the resource. Stale indices and dangling pointers then
// resolve to distinct, stable addresses, which keeps misuse diagnostics deterministic.
type Reclaiming struct {
	mu     sync.Mutex
	blocks map[uintptr][]byte
	freed  [][]byte
}

func NewReclaiming() *Reclaiming {
	return &Reclaiming{
		blocks: make(map[uintptr][]byte),
	}
}

func (r *Reclaiming) AllocateBlock(size int, align uintptr) (uintptr, error) {
	if err := checkBlockArgs(size, align); err != nil {
		return 0, err
	}

	buf := make([]byte, size+int(align))
	base := stockpile.AlignDownAddr(uintptr(unsafe.Pointer(&buf[0]))+align-1, align)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[base] = buf
	return base, nil
}

func (r *Reclaiming) FreeBlock(base uintptr, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, live := r.blocks[base]
	stockpile.DebugAssert(live, "freeing block 0x%x which this resource did not allocate", base)
	if live {
		r.freed = append(r.freed, buf)
	}
	delete(r.blocks, base)
}

// LiveBlocks returns the number of blocks allocated and not yet freed
func (r *Reclaiming) LiveBlocks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocks)
}
