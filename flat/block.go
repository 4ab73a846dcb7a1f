package flat

import "github.com/vkngwrapper/stockpile"

// slotBlock is the bookkeeping header for one fixed-capacity block of slots. The header
// lives on the Go heap rather than inside the block's bytes, keyed by the block's aligned
// base address; the slab itself holds nothing but slots.
type slotBlock struct {
	base     uintptr
	blockIdx int

	// nextEmpty is the high-water mark: the count of slots ever touched in this block.
	// Every slot at or beyond it is free.
	nextEmpty int
	// prevEmpty is the candidate cursor: an index at or below nextEmpty believed free
	prevEmpty int
	used      stockpile.BitVector
}

func newSlotBlock(base uintptr, blockIdx int, slotsPerBlock int) *slotBlock {
	return &slotBlock{
		base:     base,
		blockIdx: blockIdx,
		// one spare bit so the candidate cursor can probe one slot past the last
		used: stockpile.NewBitVector(slotsPerBlock + 1),
	}
}

func (b *slotBlock) full(slotsPerBlock int) bool {
	return b.nextEmpty >= slotsPerBlock
}

func (b *slotBlock) empty() bool {
	return b.nextEmpty == 0
}

// allocate picks the candidate slot, extending the high-water mark when the candidate sat
// on it, then tries to advance the candidate by exactly one position. It never scans
// further: holes more than one slot from the candidate stay unreclaimed until an erase
// points the candidate back at them. O(1) allocation traded for approximate reuse.
func (b *slotBlock) allocate() int {
	index := b.prevEmpty

	if index == b.nextEmpty {
		b.nextEmpty++
	}
	if b.prevEmpty < b.nextEmpty && !b.used.Test(b.prevEmpty+1) {
		b.prevEmpty++
	} else {
		b.prevEmpty = b.nextEmpty
	}

	b.used.Set(index)
	return index
}

// erase frees the slot at index. Freeing the topmost touched slot lowers the high-water
// mark to it; otherwise the candidate cursor moves to the earliest known hole.
func (b *slotBlock) erase(index int) {
	b.used.Unset(index)

	if b.nextEmpty-1 == index {
		b.nextEmpty = index
	}
	if index < b.prevEmpty {
		b.prevEmpty = index
	}
}

func (b *slotBlock) clear() {
	b.nextEmpty = 0
	b.prevEmpty = 0
	b.used.Reset()
}

// occupied returns the number of live slots in this block
func (b *slotBlock) occupied() int {
	return b.used.Count()
}
