package heap

import (
	"log/slog"

	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/metadata"
)

// Release returns an allocation to the heap and merges it with any free neighbors.
//
// Releasing Nil does nothing. Releasing an allocation that is already free logs a warning
// and leaves the heap unchanged. A pointer that does not refer to a heap payload returns
// heapmm.ErrInvalidPointer.
func (h *Heap) Release(p Pointer) error {
	h.trace(LogInfo, "release", slog.Int("pointer", int(p)))

	if p.IsNil() {
		return nil
	}

	err := h.usable()
	if err != nil {
		return err
	}

	block, err := h.payloadBlock(p)
	if err != nil {
		return err
	}

	if h.region.Tag(block).IsFree() {
		h.warn("double release detected", slog.Int("pointer", int(p)))
		return nil
	}

	block, err = h.allocatedBlock(p)
	if err != nil {
		return err
	}

	h.releaseBlock(block)

	heapmm.DebugValidate(h)
	return nil
}

func (h *Heap) releaseBlock(block int) {
	size := h.region.Tag(block).Size()
	h.region.WriteBlock(block, size, metadata.StatusFree)
	h.coalesce(block)
}

// coalesce merges a free block with the free blocks on either side of it and returns the
// offset of the merged block. The cursor follows any block that is merged away.
func (h *Heap) coalesce(block int) int {
	h.trace(LogVerbose, "  coalesce", slog.Int("offset", block))

	tag := h.region.Tag(block)
	if !tag.IsFree() {
		panic("cannot coalesce an allocated block")
	}
	size := tag.Size()

	next := block + size
	nextTag := h.region.Tag(next)
	if next < h.end && nextTag.IsFree() {
		h.trace(LogVerbose, "  coalescing with succeeding block", slog.Int("next", next))

		size += nextTag.Size()
		h.region.WriteBlock(block, size, metadata.StatusFree)
		h.moveCursor(next, block)
	}

	prevTag := h.region.Tag(block - metadata.WordSize)
	if block > h.start && prevTag.IsFree() {
		prev := block - prevTag.Size()
		h.trace(LogVerbose, "  coalescing with preceding block", slog.Int("prev", prev))

		size += prevTag.Size()
		h.region.WriteBlock(prev, size, metadata.StatusFree)
		h.moveCursor(block, prev)
		block = prev
	}

	return block
}

func (h *Heap) moveCursor(from, to int) {
	if h.cursor.Relocate(from, to) {
		h.trace(LogVerbose, "  moved search cursor", slog.Int("offset", to))
	}
}
