package heap

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/metadata"
)

// Allocate returns a payload of at least size bytes. The payload is not zeroed. A size of 0
// still returns a minimum-size block.
//
// When no free block fits, the heap is extended and the search repeated. Failure to extend
// the heap is fatal.
func (h *Heap) Allocate(size int) (Pointer, error) {
	h.trace(LogInfo, "allocate", slog.Int("size", size))

	err := h.usable()
	if err != nil {
		return Nil, err
	}

	blockSize, err := metadata.BlockSize(size)
	if err != nil {
		return Nil, err
	}
	h.trace(LogVerbose, "  computed block size", slog.Int("blockSize", blockSize))

	block, err := h.findOrGrow(blockSize)
	if err != nil {
		return Nil, err
	}

	h.place(block, blockSize)

	heapmm.DebugValidate(h)
	return payloadOf(block), nil
}

// AllocateZeroed returns a zeroed payload large enough for count elements of size bytes
// each. It returns heapmm.ErrCapacityOverflow if count*size overflows.
func (h *Heap) AllocateZeroed(count, size int) (Pointer, error) {
	h.trace(LogInfo, "allocate zeroed", slog.Int("count", count), slog.Int("size", size))

	if count < 0 || size < 0 {
		return Nil, errors.Wrapf(heapmm.ErrInvalidSize, "count %d, size %d", count, size)
	}

	total, err := heapmm.CheckedMul(count, size)
	if err != nil {
		return Nil, err
	}

	p, err := h.Allocate(total)
	if err != nil {
		return Nil, err
	}

	clear(h.Bytes(p))
	return p, nil
}

// Reallocate resizes an allocation and returns the pointer to its new location, which may
// be p itself. The first min(old usable size, newSize) bytes of the payload are preserved.
//
// Reallocating Nil is the same as Allocate. Reallocating to size 0 releases p and returns Nil.
// If the allocation cannot be resized, p is left untouched and an error is returned.
func (h *Heap) Reallocate(p Pointer, newSize int) (Pointer, error) {
	h.trace(LogInfo, "reallocate", slog.Int("pointer", int(p)), slog.Int("size", newSize))

	if p.IsNil() {
		return h.Allocate(newSize)
	}

	err := h.usable()
	if err != nil {
		return Nil, err
	}

	if newSize == 0 {
		return Nil, h.Release(p)
	}

	block, err := h.allocatedBlock(p)
	if err != nil {
		return Nil, err
	}

	blockSize, err := metadata.BlockSize(newSize)
	if err != nil {
		return Nil, err
	}

	oldSize := h.region.Tag(block).Size()
	if blockSize <= oldSize {
		h.shrink(block, blockSize)

		heapmm.DebugValidate(h)
		return p, nil
	}

	if h.expand(block, blockSize) {
		heapmm.DebugValidate(h)
		return p, nil
	}

	// The old block must stay allocated until its contents have been copied: releasing it
	// first would let the new allocation reuse and overwrite it.
	newPointer, err := h.Allocate(newSize)
	if err != nil {
		return Nil, err
	}

	copied := copy(h.Bytes(newPointer), h.Bytes(p))
	h.trace(LogVerbose, "  relocated allocation",
		slog.Int("from", int(p)),
		slog.Int("to", int(newPointer)),
		slog.Int("copied", copied),
	)

	h.releaseBlock(block)

	heapmm.DebugValidate(h)
	return newPointer, nil
}

// findOrGrow searches for a free block of at least blockSize bytes, extending the heap
// between attempts
func (h *Heap) findOrGrow(blockSize int) (int, error) {
	for attempt := 0; ; attempt++ {
		if cursor, ok := h.cursor.Offset(); ok && h.policy == metadata.FitNext {
			h.trace(LogVerbose, "  starting search at", slog.Int("offset", cursor))
		} else {
			h.trace(LogVerbose, "  starting search at", slog.Int("offset", h.start))
		}

		block, found := h.searcher.FindFreeBlock(h.walker(), blockSize)
		if found {
			h.trace(LogVerbose, "  --> match", slog.Int("offset", block))
			return block, nil
		}
		h.trace(LogVerbose, "  no suitable block found")

		if attempt >= h.maxGrowthAttempts {
			return 0, h.fail(errors.Wrapf(heapmm.ErrGrowthExhausted, "block size %#x after %d extensions", blockSize, attempt))
		}

		err := h.grow(blockSize)
		if err != nil {
			return 0, err
		}
	}
}

// place marks a free block as allocated, splitting off the tail as a new free block if at
// least one minimum block would remain
func (h *Heap) place(block int, blockSize int) {
	size := h.region.Tag(block).Size()
	if size < blockSize {
		panic(errors.AssertionFailedf("block at offset %#x of size %#x cannot hold %#x bytes", block, size, blockSize))
	}

	remainder := size - blockSize
	if remainder >= metadata.MinBlockSize {
		h.trace(LogVerbose, "  splitting block",
			slog.Int("offset", block),
			slog.Int("allocated", blockSize),
			slog.Int("remainder", remainder),
		)

		h.region.WriteBlock(block, blockSize, metadata.StatusAllocated)
		h.region.WriteBlock(block+blockSize, remainder, metadata.StatusFree)
		return
	}

	h.region.WriteBlock(block, size, metadata.StatusAllocated)
}

// shrink reduces an allocated block to blockSize in place, returning the tail to the heap
func (h *Heap) shrink(block int, blockSize int) {
	size := h.region.Tag(block).Size()
	remainder := size - blockSize
	if remainder < metadata.MinBlockSize {
		return
	}

	h.trace(LogVerbose, "  shrinking in place",
		slog.Int("offset", block),
		slog.Int("size", blockSize),
		slog.Int("released", remainder),
	)

	h.region.WriteBlock(block, blockSize, metadata.StatusAllocated)
	h.region.WriteBlock(block+blockSize, remainder, metadata.StatusFree)
	h.coalesce(block + blockSize)
}

// expand grows an allocated block in place by absorbing the free block that follows it. It
// returns false, leaving the heap untouched, if that is not possible.
func (h *Heap) expand(block int, blockSize int) bool {
	size := h.region.Tag(block).Size()
	next := block + size
	if next >= h.end {
		return false
	}

	nextTag := h.region.Tag(next)
	if !nextTag.IsFree() || size+nextTag.Size() < blockSize {
		return false
	}

	combined := size + nextTag.Size()
	remainder := combined - blockSize

	h.trace(LogVerbose, "  expanding in place",
		slog.Int("offset", block),
		slog.Int("size", blockSize),
		slog.Int("absorbed", next),
	)

	if remainder >= metadata.MinBlockSize {
		h.region.WriteBlock(block, blockSize, metadata.StatusAllocated)
		h.region.WriteBlock(block+blockSize, remainder, metadata.StatusFree)
		h.cursor.Relocate(next, block+blockSize)
		return true
	}

	h.region.WriteBlock(block, combined, metadata.StatusAllocated)
	h.cursor.Relocate(next, block)
	return true
}
