package flat_test

import (
	"encoding/json"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/stockpile/backing"
	"github.com/vkngwrapper/stockpile/flat"
)

func newIntHeap(t *testing.T) *flat.Heap[int64] {
	t.Helper()
	heap, err := flat.NewHeap[int64](backing.NewReclaiming())
	require.NoError(t, err)
	return heap
}

func TestDenseLivenessSemantics(t *testing.T) {
	heap := newIntHeap(t)

	for i := 0; i < 5; i++ {
		_, err := heap.Emplace(int64(10 + i))
		require.NoError(t, err)
	}
	require.Equal(t, 5, heap.Size())

	heap.EraseAt(2)

	require.False(t, heap.Contains(2))
	for _, index := range []int{0, 1, 3, 4} {
		require.True(t, heap.Contains(index), "index %d must stay live", index)
	}

	// Iteration spans the full issued range, erased slots included; filtering is the
	// caller's job, not the iterator's
	var liveValues []int64
	visited := 0
	for it := heap.Begin(); !it.Equal(heap.End()); it = it.Next() {
		visited++
		if heap.Contains(it.Index()) {
			liveValues = append(liveValues, *it.Get())
		}
	}
	require.Equal(t, 5, visited)
	require.Equal(t, []int64{10, 11, 13, 14}, liveValues)
	require.NoError(t, heap.Validate())
}

func TestHeapIndexDivergence(t *testing.T) {
	// The issued-count index and the allocator's physical slot index coincide only until
	// the first erase: the allocator recycles the earlier hole while the issued counter
	// keeps climbing, so the two spaces diverge. This pins the documented behavior; it is
	// not a regression to "fix" silently.
	heap := newIntHeap(t)

	for i := 0; i < 3; i++ {
		_, err := heap.Emplace(int64(i))
		require.NoError(t, err)
	}

	heap.EraseAt(1)

	recycled, err := heap.Emplace(int64(99))
	require.NoError(t, err)
	issuedIndex := heap.Size() - 1
	require.Equal(t, 3, issuedIndex)

	// The new object physically landed in recycled slot 1, not in slot 3
	require.Same(t, heap.Get(1), recycled)
	require.NotSame(t, heap.Get(issuedIndex), recycled)

	// The presence bits follow the same split addressing
	require.True(t, heap.Contains(issuedIndex))
	require.False(t, heap.Contains(1))
}

func TestHeapEraseByPointer(t *testing.T) {
	heap := newIntHeap(t)

	ptr, err := heap.Emplace(int64(5))
	require.NoError(t, err)
	_, err = heap.Emplace(int64(6))
	require.NoError(t, err)

	heap.Erase(ptr)
	require.False(t, heap.Contains(0))
	require.True(t, heap.Contains(1))
	require.Equal(t, 2, heap.Size())
}

func TestHeapSizeNeverShrinks(t *testing.T) {
	heap := newIntHeap(t)

	for i := 0; i < 5; i++ {
		_, err := heap.Emplace(int64(i))
		require.NoError(t, err)
	}
	for i := 4; i >= 0; i-- {
		heap.EraseAt(i)
	}
	require.Equal(t, 5, heap.Size())

	_, err := heap.Emplace(int64(50))
	require.NoError(t, err)
	require.Equal(t, 6, heap.Size())
	require.NoError(t, heap.Validate())
}

func TestHeapMakeShared(t *testing.T) {
	heap := newIntHeap(t)

	handle, err := heap.MakeShared(int64(77))
	require.NoError(t, err)
	require.Equal(t, int64(77), *handle.Get())
	require.True(t, heap.Contains(0))

	handle.Release()
	require.False(t, heap.Contains(0))
	require.Equal(t, 1, heap.Size())
}

func TestHeapPresenceVectorGrows(t *testing.T) {
	heap := newIntHeap(t)

	const count = 5000
	for i := 0; i < count; i++ {
		_, err := heap.Emplace(int64(i))
		require.NoError(t, err)
	}

	require.Equal(t, count, heap.Size())
	require.True(t, heap.Contains(count-1))
	require.False(t, heap.Contains(count))
	require.Equal(t, int64(count-1), *heap.Get(count-1))
	require.NoError(t, heap.Validate())
}

func TestHeapClear(t *testing.T) {
	heap := newIntHeap(t)

	for i := 0; i < 10; i++ {
		_, err := heap.Emplace(int64(i))
		require.NoError(t, err)
	}

	require.NoError(t, heap.Clear())
	require.Equal(t, 0, heap.Size())
	require.False(t, heap.Contains(0))
	require.True(t, heap.Begin().Equal(heap.End()))

	ptr, err := heap.Emplace(int64(1))
	require.NoError(t, err)
	require.Same(t, heap.Get(0), ptr)
	require.True(t, heap.Contains(0))
}

func TestHeapStatsJson(t *testing.T) {
	heap := newIntHeap(t)

	for i := 0; i < 4; i++ {
		_, err := heap.Emplace(int64(i))
		require.NoError(t, err)
	}

	writer := jwriter.NewWriter()
	obj := writer.Object()
	heap.BuildStatsJson(obj)
	obj.End()

	require.NoError(t, writer.Error())
	require.True(t, json.Valid(writer.Bytes()))
}
