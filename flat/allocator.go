// Package flat implements a homogeneous dense-slot allocator. Objects of a single type are
// packed into large blocks of fixed capacity and addressed by a stable integer index that
// survives physical relocation of nothing: blocks, once indexed, keep their index forever.
// Heap composes the allocator with a presence vector into sparse, dense-indexed storage.
//
// Storage comes from byte slabs that the garbage collector treats as pointer-free. An
// object stored in a flat allocator must not be the only thing keeping a Go-heap referent
// alive.
//
// Allocator, Iterator and Heap are single-threaded structures; concurrent callers must
// layer their own lock on top, the way pool.Pool does internally.
package flat

import (
	"fmt"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/stockpile"
	"github.com/vkngwrapper/stockpile/backing"
)

// BlockTotalBytes is the byte budget of one slot block. Blocks are allocated at an
// alignment equal to this size, so any interior pointer recovers its block's base address
// by rounding down to the nearest BlockTotalBytes boundary.
const BlockTotalBytes = 4096 * 8

// Allocator hands out storage for objects of type T one slot at a time and converts
// between slot pointers and stable global indices.
type Allocator[T any] struct {
	backing       backing.Resource
	slotSize      int
	slotsPerBlock int

	// blockList holds the live blocks in creation order; the last element is the active
	// block, the only one that may be physically released
	blockList []*slotBlock
	// blockAddrs maps a block's creation-order index to its base address. It only ever
	// grows, so global index arithmetic stays valid for every block ever indexed, at the
	// cost of dangling entries for retired blocks.
	blockAddrs []uintptr
	// byBase resolves an aligned base address to its block header
	byBase *swiss.Map[uintptr, *slotBlock]
}

var _ stockpile.Validatable = &Allocator[int]{}

// NewAllocator creates an Allocator with one empty block. The per-type capacity constraint
// is enforced here, before any object can be built: a T larger than BlockTotalBytes is
// rejected with ObjectTooLargeError. A nil resource falls back to the shared monotonic
// backing resource.
func NewAllocator[T any](resource backing.Resource) (*Allocator[T], error) {
	var zero T
	slotSize := int(unsafe.Sizeof(zero))
	if slotSize == 0 {
		return nil, cerrors.Wrapf(stockpile.ZeroSizeError, "%T cannot be stored in a flat allocator", zero)
	}

	slotsPerBlock := BlockTotalBytes / slotSize
	if slotsPerBlock == 0 {
		return nil, cerrors.Wrapf(stockpile.ObjectTooLargeError, "%T is %d bytes, exceeding the %d-byte block budget", zero, slotSize, BlockTotalBytes)
	}

	if resource == nil {
		resource = backing.Shared
	}

	a := &Allocator[T]{
		backing:       resource,
		slotSize:      slotSize,
		slotsPerBlock: slotsPerBlock,
		byBase:        swiss.NewMap[uintptr, *slotBlock](16),
	}
	_, err := a.newBlock()
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SlotsPerBlock returns the number of T slots each block holds
func (a *Allocator[T]) SlotsPerBlock() int {
	return a.slotsPerBlock
}

// NumBlocks returns the number of live blocks
func (a *Allocator[T]) NumBlocks() int {
	return len(a.blockList)
}

func (a *Allocator[T]) active() *slotBlock {
	return a.blockList[len(a.blockList)-1]
}

// newBlock allocates a fresh aligned block and makes it active. The creation-order index
// is taken from the live list length, which shrinks when the active block is retired while
// the address table only grows; after a retire the index assigned here can alias an older
// table entry. Deliberately kept; see TestBlockIndexAliasing.
func (a *Allocator[T]) newBlock() (*slotBlock, error) {
	base, err := a.backing.AllocateBlock(BlockTotalBytes, BlockTotalBytes)
	if err != nil {
		return nil, cerrors.Wrap(err, "failed to allocate a new slot block")
	}
	stockpile.DebugAssert(base%BlockTotalBytes == 0, "block base 0x%x is not aligned to the block size", base)

	block := newSlotBlock(base, len(a.blockList), a.slotsPerBlock)
	a.blockList = append(a.blockList, block)
	a.blockAddrs = append(a.blockAddrs, base)
	a.byBase.Put(base, block)
	return block, nil
}

// retireActive physically releases the active block. Only the active block can be retired:
// every older block's creation index is baked into global indices already handed out.
func (a *Allocator[T]) retireActive() {
	active := a.active()
	a.byBase.Delete(active.base)
	a.blockList = a.blockList[:len(a.blockList)-1]
	a.backing.FreeBlock(active.base, BlockTotalBytes)
}

// blockOf resolves the block holding addr by rounding the address down to the block-size
// boundary. A pointer outside the allocator is a contract violation.
func (a *Allocator[T]) blockOf(addr uintptr) *slotBlock {
	base := stockpile.AlignDownAddr(addr, BlockTotalBytes)
	block, ok := a.byBase.Get(base)
	if !ok {
		panic(fmt.Sprintf("flat: pointer 0x%x does not reside in this allocator", addr))
	}
	return block
}

func (a *Allocator[T]) slotIndex(block *slotBlock, addr uintptr) int {
	return int((addr - block.base) / uintptr(a.slotSize))
}

func (a *Allocator[T]) slotPointer(base uintptr, index int) *T {
	return (*T)(unsafe.Pointer(base + uintptr(index)*uintptr(a.slotSize)))
}

// Allocate returns storage for exactly one T, creating a new block if the active block is
// full. The returned slot may be a recycled earlier slot rather than the next untouched one.
func (a *Allocator[T]) Allocate() (*T, error) {
	if a.active().full(a.slotsPerBlock) {
		_, err := a.newBlock()
		if err != nil {
			return nil, err
		}
	}

	block := a.active()
	index := block.allocate()
	return a.slotPointer(block.base, index), nil
}

// Deallocate returns ptr's slot to its block. If that leaves the active block completely
// empty and at least one other block exists, the active block is physically released;
// older blocks are never released, even when fully vacated.
func (a *Allocator[T]) Deallocate(ptr *T) {
	addr := uintptr(unsafe.Pointer(ptr))
	block := a.blockOf(addr)
	index := a.slotIndex(block, addr)
	stockpile.DebugAssert(block.used.Test(index), "slot %d in block %d is already free", index, block.blockIdx)

	var zero T
	*ptr = zero
	block.erase(index)

	if block == a.active() && len(a.blockList) > 1 && block.empty() {
		a.retireActive()
	}
}

// IndexOf converts a slot pointer to its stable global index
func (a *Allocator[T]) IndexOf(ptr *T) int {
	addr := uintptr(unsafe.Pointer(ptr))
	block := a.blockOf(addr)
	return block.blockIdx*a.slotsPerBlock + a.slotIndex(block, addr)
}

// At converts a stable global index back to a slot pointer through the append-only address
// table. Indices into retired blocks resolve to dangling storage; holding on to them is a
// caller bug.
func (a *Allocator[T]) At(index int) *T {
	stockpile.DebugAssert(index >= 0 && index/a.slotsPerBlock < len(a.blockAddrs), "global index %d is outside the issued range", index)
	base := a.blockAddrs[index/a.slotsPerBlock]
	return a.slotPointer(base, index%a.slotsPerBlock)
}

// Clear releases every block except the active one, whose storage is reset in place to
// serve as the fresh first block, and discards the address table. Retaining the active
// block keeps Clear from consuming another block's worth of slab under the default
// monotonic backing resource, which never reclaims what FreeBlock returns.
func (a *Allocator[T]) Clear() error {
	active := a.active()
	for _, block := range a.blockList[:len(a.blockList)-1] {
		a.byBase.Delete(block.base)
		a.backing.FreeBlock(block.base, BlockTotalBytes)
	}

	active.clear()
	active.blockIdx = 0
	a.blockList = append(a.blockList[:0], active)
	a.blockAddrs = append(a.blockAddrs[:0], active.base)
	return nil
}

// Validate performs internal consistency checks on every live block
func (a *Allocator[T]) Validate() error {
	if len(a.blockList) == 0 {
		return errors.New("allocator has no active block")
	}
	if len(a.blockAddrs) < len(a.blockList) {
		return cerrors.Newf("address table has %d entries for %d live blocks", len(a.blockAddrs), len(a.blockList))
	}

	for _, block := range a.blockList {
		if block.nextEmpty > a.slotsPerBlock {
			return cerrors.Newf("block %d has high-water mark %d beyond its %d slots", block.blockIdx, block.nextEmpty, a.slotsPerBlock)
		}
		if block.prevEmpty > block.nextEmpty {
			return cerrors.Newf("block %d has candidate cursor %d beyond its high-water mark %d", block.blockIdx, block.prevEmpty, block.nextEmpty)
		}
		if block.occupied() > block.nextEmpty {
			return cerrors.Newf("block %d has %d occupied slots above its high-water mark %d", block.blockIdx, block.occupied(), block.nextEmpty)
		}
		if _, ok := a.byBase.Get(block.base); !ok {
			return cerrors.Newf("block %d at 0x%x is missing from the base table", block.blockIdx, block.base)
		}
	}
	return nil
}

// AddStatistics sums this allocator's block and slot counters into stats
func (a *Allocator[T]) AddStatistics(stats *stockpile.Statistics) {
	for _, block := range a.blockList {
		occupied := block.occupied()
		stats.BlockCount++
		stats.BlockBytes += BlockTotalBytes
		stats.ObjectCount += occupied
		stats.ObjectBytes += occupied * a.slotSize
	}
}

// AddDetailedStatistics sums this allocator's counters and free extents into stats. Every
// live slot is the same size, so the object extremes collapse to the slot size.
func (a *Allocator[T]) AddDetailedStatistics(stats *stockpile.DetailedStatistics) {
	for _, block := range a.blockList {
		stats.BlockCount++
		stats.BlockBytes += BlockTotalBytes

		occupied := block.occupied()
		for i := 0; i < occupied; i++ {
			stats.AddObject(a.slotSize)
		}

		free := a.slotsPerBlock - occupied
		if free > 0 {
			stats.AddFreeRegion(free * a.slotSize)
		}
	}
}

// BuildStatsJson populates a json object with this allocator's per-block occupancy
func (a *Allocator[T]) BuildStatsJson(json jwriter.ObjectState) {
	json.Name("BlockCount").Int(len(a.blockList))
	json.Name("SlotsPerBlock").Int(a.slotsPerBlock)
	json.Name("TotalBytes").Int(len(a.blockList) * BlockTotalBytes)

	blocksJson := json.Name("Blocks").Array()
	for _, block := range a.blockList {
		blockJson := blocksJson.Object()
		blockJson.Name("Index").Int(block.blockIdx)
		blockJson.Name("HighWaterMark").Int(block.nextEmpty)
		blockJson.Name("OccupiedSlots").Int(block.occupied())
		blockJson.End()
	}
	blocksJson.End()
}
