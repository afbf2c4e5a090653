package metadata

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmm"
)

// Walker traverses the blocks of a heap between its low sentinel (the word before Start) and
// its high sentinel (the word at End). Blocks are identified by the offset of their header.
type Walker struct {
	Region Region
	// Start is the offset of the first block header
	Start int
	// End is the offset of the high sentinel
	End int
}

func (w Walker) Header(block int) Tag {
	return w.Region.Tag(block)
}

// Footer reads the footer tag of a block, located by the size in its header
func (w Walker) Footer(block int) Tag {
	return w.Region.Tag(block + w.Header(block).Size() - WordSize)
}

// Next returns the block that follows block. For the last block this is End.
func (w Walker) Next(block int) int {
	return block + w.Header(block).Size()
}

// Prev returns the block that precedes block, located by the footer just before it. For the
// first block the low sentinel has size 0 and Prev returns block itself.
func (w Walker) Prev(block int) int {
	return block - w.Region.Tag(block-WordSize).Size()
}

// Contains returns true if block lies between the sentinels
func (w Walker) Contains(block int) bool {
	return block >= w.Start && block < w.End
}

// VisitAllBlocks calls the provided callback once for each block between the sentinels, in
// address order. Traversal stops at the first error returned by the callback, or with
// heapmm.ErrCorrupt if a block has size 0 or runs past the high sentinel.
func (w Walker) VisitAllBlocks(handleBlock func(offset int, size int, free bool) error) error {
	block := w.Start
	for block < w.End {
		tag := w.Header(block)
		if tag.Size() == 0 {
			return errors.Wrapf(heapmm.ErrCorrupt, "block at offset %#x has size 0", block)
		}
		if block+tag.Size() > w.End {
			return errors.Wrapf(heapmm.ErrCorrupt, "block at offset %#x with size %#x runs past the end sentinel at %#x", block, tag.Size(), w.End)
		}

		err := handleBlock(block, tag.Size(), tag.IsFree())
		if err != nil {
			return err
		}

		block += tag.Size()
	}

	return nil
}
