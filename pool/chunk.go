package pool

import "unsafe"

const (
	// ChunkSize is the total byte size of one chunk, header included
	ChunkSize = 8192
	// ChunksPerBlock is the number of chunks carved out of each backing block
	ChunksPerBlock = 32
	// BlockSize is the byte size of one backing block. Blocks are allocated at BlockSize
	// alignment, so a block's identity is its address divided by BlockSize.
	BlockSize = ChunkSize * ChunksPerBlock

	// emptyChunkInsertAfter selects the reinsertion policy for a chunk that has just been
	// fully vacated: false splices it in front of the current chunk and makes it the next
	// allocation target, true splices it behind the current chunk.
	emptyChunkInsertAfter = false

	// objectAlign is the packing granularity within a chunk. Reservations are rounded up to
	// it so that a chunk holding mixed types keeps natural alignment for every object.
	objectAlign = 8
)

// chunkHeader lives at the start of every chunk, inside the chunk's own bytes. All fields
// are address-sized integers rather than real pointers so the backing slab stays opaque to
// the garbage collector.
type chunkHeader struct {
	head uintptr // address of the next free byte in this chunk
	next uintptr // address of the next free chunk, 0 if none
	used uintptr // occupied bytes, header included
}

const headerSize = int(unsafe.Sizeof(chunkHeader{}))

// ChunkPayload is the number of bytes in one chunk usable for objects
const ChunkPayload = ChunkSize - headerSize

func chunkAt(base uintptr) *chunkHeader {
	return (*chunkHeader)(unsafe.Pointer(base))
}

func (c *chunkHeader) base() uintptr {
	return uintptr(unsafe.Pointer(c))
}

// init links the chunk ahead of next and resets its cursor and occupancy
func (c *chunkHeader) init(next uintptr) {
	c.next = next
	c.used = uintptr(headerSize)
	c.head = c.base() + uintptr(headerSize)
}

// empty reports whether every object in this chunk has been released. Occupancy starts at
// the header's own size, so empty means used has fallen back to exactly that.
func (c *chunkHeader) empty() bool {
	return c.used == uintptr(headerSize)
}

// fits reports whether size more bytes can be written at the cursor. Filling a chunk to
// exactly its end is allowed; a fresh chunk therefore fits any payload-sized reservation,
// which is what guarantees the advance loop in reserve terminates.
func (c *chunkHeader) fits(size int) bool {
	return c.head-c.base()+uintptr(size) <= ChunkSize
}

// reserve hands out size bytes at the cursor and bumps occupancy
func (c *chunkHeader) reserve(size int) uintptr {
	addr := c.head
	c.head += uintptr(size)
	c.used += uintptr(size)
	return addr
}
