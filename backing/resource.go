// Package backing provides the raw block storage that the pool and flat engines carve
// their chunks and slots from. Engines request large power-of-two-aligned regions through
// the Resource interface; the alignment guarantee is what lets them recover a block's
// identity from any interior pointer with integer arithmetic alone.
package backing

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/stockpile"
)

// Resource hands out large aligned regions of memory. Implementations must keep every
// region they have handed out reachable by the garbage collector until it is freed (or,
// for non-reclaiming implementations, until the resource itself is unreachable).
type Resource interface {
	// AllocateBlock returns the base address of a region exactly size bytes long whose
	// address is a multiple of align. align must be a power of two.
	AllocateBlock(size int, align uintptr) (uintptr, error)
	// FreeBlock returns a region previously obtained from AllocateBlock. Non-reclaiming
	// implementations may treat this as a no-op.
	FreeBlock(base uintptr, size int)
}

func checkBlockArgs(size int, align uintptr) error {
	if size <= 0 {
		return cerrors.Newf("block size is %d, must be positive", size)
	}
	if align == 0 {
		return cerrors.Wrap(stockpile.PowerOfTwoError, "block alignment is zero")
	}
	if err := stockpile.CheckPow2(align, "block alignment"); err != nil {
		return err
	}
	return nil
}
