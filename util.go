package stockpile

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uintptr
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// AlignDownAddr rounds an address down to the nearest multiple of alignment, which
// must be a power of two. Blocks in this module are allocated at an alignment equal
// to their own size, so this recovers a block's base address from any interior pointer.
func AlignDownAddr(addr uintptr, alignment uintptr) uintptr {
	return addr &^ (alignment - 1)
}
