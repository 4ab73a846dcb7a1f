// Package pool implements a heterogeneous pooled allocator for small, short-lived objects.
// Objects of arbitrary, possibly mixed, types are constructed into fixed-size chunks carved
// from larger aligned blocks; releasing an object reclaims its chunk's capacity only once
// the whole chunk has been vacated.
//
// Storage comes from byte slabs that the garbage collector treats as pointer-free. An
// object stored in a pool must not be the only thing keeping a Go-heap referent (the
// backing array of a slice, the data of a runtime-built string, a pointee) alive.
package pool

import (
	"context"
	"sync"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/stockpile"
	"github.com/vkngwrapper/stockpile/backing"
	"golang.org/x/exp/slog"
)

// initialBlockTableCapacity seeds the block table; each block holds thousands of small
// objects, so most pools never outgrow a handful of entries
const initialBlockTableCapacity = 8

// Pool is a chunked allocator for objects of mixed types. All methods and the package-level
// Make/MakeShared/Release functions are safe for concurrent use; the block table, current
// chunk and free-chunk list are guarded by a single mutex per Pool.
type Pool struct {
	logger  *slog.Logger
	backing backing.Resource

	mu          sync.Mutex
	blocks      *swiss.Map[uintptr, uintptr] // block index -> block base address
	curChunk    uintptr
	liveObjects int
}

var _ stockpile.Validatable = &Pool{}

// New creates a Pool with one block of chunks ready for allocation. A nil logger falls back
// to slog.Default() and a nil resource falls back to the shared monotonic backing resource.
func New(logger *slog.Logger, resource backing.Resource) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if resource == nil {
		resource = backing.Shared
	}

	p := &Pool{
		logger:  logger,
		backing: resource,
		blocks:  swiss.NewMap[uintptr, uintptr](initialBlockTableCapacity),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.allocBlock()
	if err != nil {
		return nil, err
	}
	return p, nil
}

// allocBlock carves a fresh block into chunks, threads them into the free list and makes
// the block's first chunk current. Called with the mutex held.
func (p *Pool) allocBlock() error {
	base, err := p.backing.AllocateBlock(BlockSize, BlockSize)
	if err != nil {
		return cerrors.Wrap(err, "failed to allocate a new chunk block")
	}
	stockpile.DebugAssert(base%BlockSize == 0, "block base 0x%x is not aligned to the block size", base)

	chunk := base
	for i := 0; i < ChunksPerBlock-1; i++ {
		chunkAt(chunk).init(chunk + ChunkSize)
		chunk += ChunkSize
	}
	chunkAt(chunk).init(0)

	if p.curChunk != 0 {
		chunkAt(p.curChunk).next = base
	}
	p.curChunk = base

	blockIdx := base / BlockSize
	stockpile.DebugAssert(!p.blocks.Has(blockIdx), "block index %d is already present in the block table", blockIdx)
	p.blocks.Put(blockIdx, base)
	return nil
}

// reserve finds or creates chunk capacity for size bytes and hands out the span. Emptied
// chunks are spliced in front of the cursor, so the free list can chain through chunks that
// are still full or nearly full; the advance keeps following links until one fits, creating
// a new block at the end of the chain. Called with the mutex held.
func (p *Pool) reserve(size int) (uintptr, error) {
	cur := chunkAt(p.curChunk)
	for !cur.fits(size) {
		if cur.next == 0 {
			err := p.allocBlock()
			if err != nil {
				return 0, err
			}
		} else {
			p.curChunk = cur.next
		}
		cur = chunkAt(p.curChunk)
	}

	p.liveObjects++
	return cur.reserve(size), nil
}

// reclaim returns size bytes to the chunk at chunkBase. If that empties the chunk, its
// cursor is reset and it is spliced back into the free-chunk list per the reinsertion
// policy. Callers must not hold the mutex: handle releases re-enter here, so the address
// lookup is done separately and reclaim re-acquires the lock itself.
func (p *Pool) reclaim(chunkBase uintptr, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := chunkAt(chunkBase)
	stockpile.DebugAssert(c.used >= uintptr(headerSize+size), "chunk at 0x%x is releasing %d bytes but only holds %d", chunkBase, size, c.used)
	c.used -= uintptr(size)
	p.liveObjects--

	if c.empty() {
		c.head = c.base() + uintptr(headerSize)
		if chunkBase == p.curChunk {
			// Already the allocation target; splicing would self-link the chunk and
			// orphan the rest of the free list.
			return
		}
		if emptyChunkInsertAfter {
			cur := chunkAt(p.curChunk)
			c.next = cur.next
			cur.next = chunkBase
		} else {
			c.next = p.curChunk
			p.curChunk = chunkBase
		}
	}
}

// chunkOf resolves the chunk holding addr by address arithmetic alone: the block is
// addr / BlockSize, the chunk is the offset within the block divided by ChunkSize.
// Called with the mutex held.
func (p *Pool) chunkOf(addr uintptr) (uintptr, bool) {
	base, ok := p.blocks.Get(addr / BlockSize)
	if !ok {
		return 0, false
	}
	chunkIdx := (addr - base) / ChunkSize
	return base + chunkIdx*ChunkSize, true
}

// Contains reports whether ptr resides in storage owned by this pool
func (p *Pool) Contains(ptr unsafe.Pointer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blocks.Has(uintptr(ptr) / BlockSize)
}

// NumBlocks returns the number of backing blocks this pool has allocated
func (p *Pool) NumBlocks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blocks.Count()
}

// LiveObjects returns the number of objects constructed and not yet released
func (p *Pool) LiveObjects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveObjects
}

// Destroy releases every backing block to the pool's resource. If any objects are still
// live, their chunk occupancy is logged and an error is returned; the blocks are freed
// regardless, so outstanding pointers and handles must not be used afterwards.
func (p *Pool) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	leaked := p.liveObjects
	if leaked > 0 {
		p.blocks.Iter(func(blockIdx uintptr, base uintptr) bool {
			for i := 0; i < ChunksPerBlock; i++ {
				c := chunkAt(base + uintptr(i)*ChunkSize)
				if !c.empty() {
					p.logger.LogAttrs(context.Background(), slog.LevelError,
						"[UNRELEASED MEMORY] chunk still occupied at pool destruction",
						slog.Uint64("block", uint64(blockIdx)),
						slog.Int("chunk", i),
						slog.Int("occupiedBytes", int(c.used)-headerSize))
				}
			}
			return false
		})
	}

	p.blocks.Iter(func(_ uintptr, base uintptr) bool {
		p.backing.FreeBlock(base, BlockSize)
		return false
	})
	p.blocks = swiss.NewMap[uintptr, uintptr](initialBlockTableCapacity)
	p.curChunk = 0
	p.liveObjects = 0

	if leaked > 0 {
		return errors.New("some objects were not released before the destruction of this pool")
	}
	return nil
}

// Validate performs internal consistency checks on the pool's chunk bookkeeping. When the
// pool is functioning correctly it cannot return an error, but it can help diagnose
// corruption from contract violations.
func (p *Pool) Validate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.curChunk == 0 {
		return errors.New("pool has no current chunk")
	}
	if _, ok := p.chunkOf(p.curChunk); !ok {
		return cerrors.Newf("current chunk 0x%x does not reside in any owned block", p.curChunk)
	}

	freeChunks := 0
	maxChunks := p.blocks.Count() * ChunksPerBlock
	for chunk := p.curChunk; chunk != 0; chunk = chunkAt(chunk).next {
		if _, ok := p.chunkOf(chunk); !ok {
			return cerrors.Newf("free list contains chunk 0x%x which does not reside in any owned block", chunk)
		}
		c := chunkAt(chunk)
		if c.used < uintptr(headerSize) || c.used > ChunkSize {
			return cerrors.Newf("chunk 0x%x has occupancy %d outside [%d, %d]", chunk, c.used, headerSize, ChunkSize)
		}
		if c.head < chunk+uintptr(headerSize) || c.head > chunk+ChunkSize {
			return cerrors.Newf("chunk 0x%x has write cursor 0x%x outside its bounds", chunk, c.head)
		}
		if c.used > c.head-chunk {
			return cerrors.Newf("chunk 0x%x has occupancy %d beyond its write cursor", chunk, c.used)
		}

		freeChunks++
		if freeChunks > maxChunks {
			return errors.New("free-chunk list contains a cycle")
		}
	}
	return nil
}

// AddStatistics sums this pool's block and object counters into stats
func (p *Pool) AddStatistics(stats *stockpile.Statistics) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats.BlockCount += p.blocks.Count()
	stats.BlockBytes += p.blocks.Count() * BlockSize
	stats.ObjectCount += p.liveObjects
	p.blocks.Iter(func(_ uintptr, base uintptr) bool {
		for i := 0; i < ChunksPerBlock; i++ {
			c := chunkAt(base + uintptr(i)*ChunkSize)
			stats.ObjectBytes += int(c.used) - headerSize
		}
		return false
	})
}

// AddDetailedStatistics sums this pool's counters and per-chunk free extents into stats.
// Object size extremes are not tracked: the pool does not record per-object sizes, only
// per-chunk occupancy.
func (p *Pool) AddDetailedStatistics(stats *stockpile.DetailedStatistics) {
	p.AddStatistics(&stats.Statistics)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks.Iter(func(_ uintptr, base uintptr) bool {
		for i := 0; i < ChunksPerBlock; i++ {
			c := chunkAt(base + uintptr(i)*ChunkSize)
			stats.AddFreeRegion(ChunkSize - int(c.used))
		}
		return false
	})
}

// BuildStatsJson populates a json object with this pool's block and chunk occupancy
func (p *Pool) BuildStatsJson(json jwriter.ObjectState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	json.Name("BlockCount").Int(p.blocks.Count())
	json.Name("TotalBytes").Int(p.blocks.Count() * BlockSize)
	json.Name("LiveObjects").Int(p.liveObjects)

	blocksJson := json.Name("Blocks").Array()
	p.blocks.Iter(func(blockIdx uintptr, base uintptr) bool {
		blockJson := blocksJson.Object()
		blockJson.Name("Index").Int(int(blockIdx))

		chunksJson := blockJson.Name("OccupiedBytes").Array()
		for i := 0; i < ChunksPerBlock; i++ {
			c := chunkAt(base + uintptr(i)*ChunkSize)
			chunksJson.Int(int(c.used) - headerSize)
		}
		chunksJson.End()
		blockJson.End()
		return false
	})
	blocksJson.End()
}
