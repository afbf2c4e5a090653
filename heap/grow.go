package heap

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/metadata"
)

// grow extends the provider region by enough whole growth increments to hold blockSize and
// turns the new space into a free block, merged into the last block if that one is free
func (h *Heap) grow(blockSize int) error {
	heapmm.DebugCheckPow2(h.growthIncrement, "growthIncrement")
	padded, err := heapmm.CheckedAdd(blockSize, h.growthIncrement-1)
	if err != nil {
		return errors.Wrapf(err, "growing the heap for block size %#x", blockSize)
	}
	amount := heapmm.AlignDown(padded, h.growthIncrement)

	oldEnd := h.end
	lastTag := h.region.Tag(oldEnd - metadata.WordSize)
	lastBlock := oldEnd - lastTag.Size()

	h.trace(LogVerbose, "  expanding heap", slog.Int("amount", amount), slog.Int("lastBlock", lastBlock))

	brk, err := h.provider.Grow(amount)
	if err != nil {
		return h.fail(outOfMemory(err, amount))
	}

	h.region = metadata.Region(h.provider.Bytes())
	h.rawEnd = brk
	newEnd := heapmm.AlignDown(brk-metadata.WordSize, metadata.MinBlockSize)

	h.trace(LogVerbose, "  heap break moved",
		slog.Int("rawEnd", brk),
		slog.Int("end", newEnd),
	)

	if newEnd-oldEnd < metadata.MinBlockSize {
		return h.fail(errors.Wrapf(heapmm.ErrOutOfMemory, "break at %#x leaves no room for a new block after %#x", brk, oldEnd))
	}

	// The old high sentinel becomes the header of the new block
	h.region.WriteBlock(oldEnd, newEnd-oldEnd, metadata.StatusFree)
	h.region.SetTag(newEnd, metadata.SentinelTag)
	h.end = newEnd

	if lastTag.IsFree() && lastTag.Size() > 0 {
		h.coalesce(lastBlock)
	}

	h.callbacks.Grow(oldEnd, newEnd)
	return nil
}
