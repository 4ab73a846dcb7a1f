package stockpile

import "math/bits"

// BitVector is a growable bit-per-slot presence map. The zero value is an empty vector;
// use NewBitVector to start with capacity for a known number of bits.
type BitVector struct {
	words []uint64
	size  int
}

func NewBitVector(size int) BitVector {
	var v BitVector
	v.Resize(size)
	return v
}

// Size returns the number of addressable bits
func (v *BitVector) Size() int { return v.size }

// Test returns whether the bit at index is set. index must be below Size().
func (v *BitVector) Test(index int) bool {
	return v.words[index/64]&(1<<(index%64)) != 0
}

// Set turns on the bit at index. index must be below Size().
func (v *BitVector) Set(index int) {
	v.words[index/64] |= 1 << (index % 64)
}

// Unset turns off the bit at index. index must be below Size().
func (v *BitVector) Unset(index int) {
	v.words[index/64] &^= 1 << (index % 64)
}

// Resize grows (or logically shrinks) the vector to the provided bit count. Newly
// exposed bits are unset.
func (v *BitVector) Resize(size int) {
	wordCount := (size + 63) / 64
	if wordCount > len(v.words) {
		grown := make([]uint64, wordCount)
		copy(grown, v.words)
		v.words = grown
	}
	v.size = size
}

// Reset turns off every bit while keeping the current size
func (v *BitVector) Reset() {
	for i := range v.words {
		v.words[i] = 0
	}
}

// Clear empties the vector entirely, dropping its size to zero
func (v *BitVector) Clear() {
	v.words = nil
	v.size = 0
}

// Count returns the number of set bits
func (v *BitVector) Count() int {
	var count int
	for _, word := range v.words {
		count += bits.OnesCount64(word)
	}
	return count
}
