package flat_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/stockpile"
	"github.com/vkngwrapper/stockpile/backing"
	"github.com/vkngwrapper/stockpile/flat"
)

// bigSlot is sized so a block holds exactly 8 slots, keeping block-lifecycle tests small
type bigSlot [flat.BlockTotalBytes / 8]byte

func newIntAllocator(t *testing.T) *flat.Allocator[int64] {
	t.Helper()
	alloc, err := flat.NewAllocator[int64](backing.NewReclaiming())
	require.NoError(t, err)
	return alloc
}

func TestNewAllocatorRejectsImpossibleTypes(t *testing.T) {
	type oversized [flat.BlockTotalBytes + 1]byte
	_, err := flat.NewAllocator[oversized](backing.NewReclaiming())
	require.ErrorIs(t, err, stockpile.ObjectTooLargeError)

	_, err = flat.NewAllocator[struct{}](backing.NewReclaiming())
	require.ErrorIs(t, err, stockpile.ZeroSizeError)
}

func TestAllocateAssignsSequentialIndices(t *testing.T) {
	alloc := newIntAllocator(t)

	for i := 0; i < 10; i++ {
		ptr, err := alloc.Allocate()
		require.NoError(t, err)
		*ptr = int64(i)
		require.Equal(t, i, alloc.IndexOf(ptr))
	}
	require.NoError(t, alloc.Validate())
}

func TestStableIndicesAcrossBlocks(t *testing.T) {
	alloc := newIntAllocator(t)
	perBlock := alloc.SlotsPerBlock()

	total := perBlock * 3
	ptrs := make([]*int64, total)
	for i := 0; i < total; i++ {
		ptr, err := alloc.Allocate()
		require.NoError(t, err)
		*ptr = int64(i)
		ptrs[i] = ptr
	}
	require.Equal(t, 3, alloc.NumBlocks())

	for i, ptr := range ptrs {
		index := alloc.IndexOf(ptr)
		require.Equal(t, i, index)
		require.Same(t, ptr, alloc.At(index))
		require.Equal(t, int64(i), *alloc.At(index))
	}
	require.NoError(t, alloc.Validate())
}

func TestFreeSlotHeuristic(t *testing.T) {
	alloc := newIntAllocator(t)

	ptrs := make([]*int64, 6)
	for i := range ptrs {
		ptr, err := alloc.Allocate()
		require.NoError(t, err)
		ptrs[i] = ptr
	}

	// A just-freed slot is recovered by the very next allocation
	alloc.Deallocate(ptrs[2])
	reused, err := alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, 2, alloc.IndexOf(reused))
	require.Same(t, ptrs[2], reused)

	next, err := alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, 6, alloc.IndexOf(next))

	// The cursor tracks only one candidate: with holes at 1 and 3, the earlier one is
	// recovered and the later one goes stale while the high-water mark keeps climbing.
	// Approximate reuse, not optimal, by design.
	alloc.Deallocate(ptrs[1])
	alloc.Deallocate(ptrs[3])

	first, err := alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, 1, alloc.IndexOf(first))

	second, err := alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, 7, alloc.IndexOf(second), "stale hole at index 3 must not be scanned for")

	// An adjacent pair of freed slots is recovered back to back
	alloc.Deallocate(ptrs[4])
	alloc.Deallocate(ptrs[5])

	first, err = alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, 4, alloc.IndexOf(first))

	second, err = alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, 5, alloc.IndexOf(second))

	require.NoError(t, alloc.Validate())
}

func TestHighWaterMarkShrinksOnTrailingFrees(t *testing.T) {
	alloc := newIntAllocator(t)

	ptrs := make([]*int64, 3)
	for i := range ptrs {
		ptr, err := alloc.Allocate()
		require.NoError(t, err)
		ptrs[i] = ptr
	}

	// Freeing from the top reclaims trailing capacity immediately
	alloc.Deallocate(ptrs[2])
	alloc.Deallocate(ptrs[1])
	alloc.Deallocate(ptrs[0])

	ptr, err := alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, 0, alloc.IndexOf(ptr))
	require.Equal(t, 1, alloc.NumBlocks())
	require.NoError(t, alloc.Validate())
}

func TestActiveBlockOnlyReclamation(t *testing.T) {
	resource := backing.NewReclaiming()
	alloc, err := flat.NewAllocator[bigSlot](resource)
	require.NoError(t, err)
	require.Equal(t, 8, alloc.SlotsPerBlock())

	residents := make([]*bigSlot, 8)
	for i := range residents {
		residents[i], err = alloc.Allocate()
		require.NoError(t, err)
	}

	spill, err := alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, 2, alloc.NumBlocks())

	// Vacating the older, non-active block must not release it: its creation index is
	// baked into every global index issued for its slots.
	anchor := alloc.At(0)
	for i := len(residents) - 1; i >= 0; i-- {
		alloc.Deallocate(residents[i])
	}
	require.Equal(t, 2, alloc.NumBlocks())
	require.Equal(t, 2, resource.LiveBlocks())
	require.Same(t, anchor, alloc.At(0), "vacated non-active block moved")

	// Vacating the active block releases it while the older block remains
	alloc.Deallocate(spill)
	require.Equal(t, 1, alloc.NumBlocks())
	require.Equal(t, 1, resource.LiveBlocks())
	require.Same(t, anchor, alloc.At(0))
	require.NoError(t, alloc.Validate())
}

func TestBlockIndexAliasing(t *testing.T) {
	// A new block's creation index comes from the live-block count, which shrinks when
	// the active block is retired; the address table only grows. After a retire, the next
	// block created is assigned an index that already names an older table entry, and
	// index arithmetic for its slots resolves through the stale entry. This pins the
	// behavior; it is documented, not fixed.
	alloc, err := flat.NewAllocator[bigSlot](backing.NewReclaiming())
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err = alloc.Allocate()
		require.NoError(t, err)
	}

	transient, err := alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, 2, alloc.NumBlocks())

	alloc.Deallocate(transient)
	require.Equal(t, 1, alloc.NumBlocks())

	aliased, err := alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, 8, alloc.IndexOf(aliased))
	require.NotSame(t, aliased, alloc.At(alloc.IndexOf(aliased)),
		"index 8 resolves through the retired block's table entry")
}

func TestDeallocateForeignPointerPanics(t *testing.T) {
	alloc := newIntAllocator(t)

	foreign := new(int64)
	require.Panics(t, func() {
		alloc.Deallocate(foreign)
	})
}

func TestClearStartsFresh(t *testing.T) {
	resource := backing.NewReclaiming()
	alloc, err := flat.NewAllocator[bigSlot](resource)
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		_, err = alloc.Allocate()
		require.NoError(t, err)
	}
	require.Equal(t, 2, alloc.NumBlocks())

	require.NoError(t, alloc.Clear())
	require.Equal(t, 1, alloc.NumBlocks())
	require.Equal(t, 1, resource.LiveBlocks())

	ptr, err := alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, 0, alloc.IndexOf(ptr))
	require.NoError(t, alloc.Validate())
}

func TestClearReusesActiveBlockStorage(t *testing.T) {
	resource := backing.NewReclaiming()
	alloc, err := flat.NewAllocator[int64](resource)
	require.NoError(t, err)

	before, err := alloc.Allocate()
	require.NoError(t, err)

	// The active block's storage survives Clear; no replacement block is requested
	require.NoError(t, alloc.Clear())
	require.Equal(t, 1, resource.LiveBlocks())

	after, err := alloc.Allocate()
	require.NoError(t, err)
	require.Same(t, before, after)
	require.Equal(t, 0, alloc.IndexOf(after))
	require.NoError(t, alloc.Validate())
}

func TestAllocatorStatistics(t *testing.T) {
	alloc := newIntAllocator(t)

	for i := 0; i < 5; i++ {
		_, err := alloc.Allocate()
		require.NoError(t, err)
	}

	var stats stockpile.DetailedStatistics
	stats.Clear()
	alloc.AddDetailedStatistics(&stats)

	require.Equal(t, 1, stats.BlockCount)
	require.Equal(t, flat.BlockTotalBytes, stats.BlockBytes)
	require.Equal(t, 5, stats.ObjectCount)
	require.Equal(t, 40, stats.ObjectBytes)
	require.Equal(t, 1, stats.FreeRegionCount)
	require.Equal(t, (alloc.SlotsPerBlock()-5)*8, stats.FreeRegionSizeMax)
}
