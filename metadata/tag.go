package metadata

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmm"
)

const (
	// WordSize is the width in bytes of a boundary tag
	WordSize = 8
	// MinBlockSize is the smallest block the heap will create: a header, a footer and two
	// words of payload. Every block size is a multiple of it.
	MinBlockSize = 32

	statusMask Tag = 0x7
	sizeMask       = ^statusMask
)

// Status is the allocation state stored in the low bits of a boundary tag
type Status uint8

const (
	StatusFree      Status = 0
	StatusAllocated Status = 1
)

var statusMapping = map[Status]string{
	StatusFree:      "free",
	StatusAllocated: "allocated",
}

func (s Status) String() string {
	str, ok := statusMapping[s]
	if !ok {
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
	return str
}

// Tag is a packed boundary tag. The high bits hold the block size and the low three bits
// hold the Status.
type Tag uint64

// SentinelTag marks the zero-size allocated half-blocks at either end of the heap
const SentinelTag = Tag(StatusAllocated)

// NewTag packs a block size and status. It panics if size is negative or not a multiple of
// MinBlockSize.
func NewTag(size int, status Status) Tag {
	if size < 0 || size%MinBlockSize != 0 {
		panic(fmt.Sprintf("block size %d is not a multiple of %d", size, MinBlockSize))
	}
	if Tag(status)&^statusMask != 0 {
		panic(fmt.Sprintf("invalid block status %d", status))
	}

	return Tag(size) | Tag(status)
}

func (t Tag) Size() int {
	return int(t & sizeMask)
}

func (t Tag) Status() Status {
	return Status(t & statusMask)
}

func (t Tag) IsFree() bool {
	return t.Status() == StatusFree
}

func (t Tag) String() string {
	return fmt.Sprintf("size: %#x (%d), status: %s", t.Size(), t.Size(), t.Status())
}

// BlockSize computes the size of the block needed to hold a payload of the requested size:
// header, payload and footer rounded up to MinBlockSize.
func BlockSize(payload int) (int, error) {
	if payload < 0 {
		return 0, errors.Wrapf(heapmm.ErrInvalidSize, "payload size %d", payload)
	}

	if payload > math.MaxInt-2*WordSize-(MinBlockSize-1) {
		return 0, errors.Wrapf(heapmm.ErrCapacityOverflow, "payload size %d", payload)
	}

	return heapmm.AlignUp(WordSize+payload+WordSize, MinBlockSize), nil
}

// PayloadSize is the number of usable bytes between the header and footer of a block
func PayloadSize(blockSize int) int {
	return blockSize - 2*WordSize
}
