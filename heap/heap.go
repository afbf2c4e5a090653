// Package heap implements malloc, calloc, realloc and free over a provider region using an
// implicit free list. Every block carries a boundary tag at each end recording its size and
// allocation status:
//
//	 raw start    start                                      end      raw end
//	   |          |                                          |           |
//	   v          v                                          v           v
//	   +------+---+---+------------------------------------+---+---+-----+
//	   | pad  | H | h :             free block             : f | H | pad |
//	   +------+---+---+------------------------------------+---+---+-----+
//	            ^                                              ^
//	   low sentinel half-block                       high sentinel half-block
//
// Free blocks are found by walking the tags, split on allocation and merged with their
// neighbors as soon as they are released. A Heap is not safe for concurrent use: callers
// sharing one across goroutines must serialize every call themselves.
package heap

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/metadata"
	"github.com/vkngwrapper/heapmm/provider"
)

// Pointer identifies an allocation by the offset of its payload within the provider region
type Pointer int

// Nil is the Pointer returned for empty results. No payload can live at offset 0.
const Nil Pointer = 0

func (p Pointer) IsNil() bool {
	return p == Nil
}

func (p Pointer) block() int {
	return int(p) - metadata.WordSize
}

func payloadOf(block int) Pointer {
	return Pointer(block + metadata.WordSize)
}

// Heap is an allocator context. It owns the heap bounds, the active fit policy and the
// next-fit cursor for one provider region.
type Heap struct {
	logger    *slog.Logger
	logLevel  LogLevel
	callbacks heapCallbacks

	provider          provider.Provider
	region            metadata.Region
	growthIncrement   int
	maxGrowthAttempts int

	policy   metadata.FitPolicy
	searcher metadata.BlockSearcher
	cursor   metadata.Cursor

	rawStart int
	rawEnd   int
	start    int
	end      int

	failure error
}

var _ heapmm.Validatable = &Heap{}

func (h *Heap) walker() metadata.Walker {
	return metadata.Walker{
		Region: h.region,
		Start:  h.start,
		End:    h.end,
	}
}

// Policy returns the fit policy chosen when the heap was created
func (h *Heap) Policy() metadata.FitPolicy { return h.policy }

// Bounds returns the logical start of the heap (the first block header) and its logical end
// (the high sentinel)
func (h *Heap) Bounds() (start int, end int) { return h.start, h.end }

// RawBounds returns the provider extent the heap currently occupies
func (h *Heap) RawBounds() (start int, end int) { return h.rawStart, h.rawEnd }

// Cursor returns the block the next search will resume from, if the policy uses one
func (h *Heap) Cursor() (int, bool) { return h.cursor.Offset() }

func (h *Heap) GrowthIncrement() int { return h.growthIncrement }

// Err returns the fatal error that made the heap unusable, if any
func (h *Heap) Err() error { return h.failure }

// Bytes returns the usable payload of an allocation: every byte between its header and its
// footer. The slice is only valid until the allocation is released or reallocated. It returns
// nil if p is not a live allocation.
func (h *Heap) Bytes(p Pointer) []byte {
	block, err := h.allocatedBlock(p)
	if err != nil {
		return nil
	}

	footer := block + h.region.Tag(block).Size() - metadata.WordSize
	return h.region[int(p):footer:footer]
}

// UsableSize returns the number of payload bytes available to an allocation, which may be
// larger than the size originally requested
func (h *Heap) UsableSize(p Pointer) int {
	return len(h.Bytes(p))
}

// payloadBlock validates that p is a block-aligned payload address between the sentinels and
// returns its block
func (h *Heap) payloadBlock(p Pointer) (int, error) {
	block := p.block()
	if block < h.start || block >= h.end || (block-h.start)%metadata.MinBlockSize != 0 {
		return 0, errors.Wrapf(heapmm.ErrInvalidPointer, "pointer %#x is outside heap [%#x, %#x)", int(p), h.start, h.end)
	}

	return block, nil
}

// allocatedBlock validates that p refers to a live, structurally sound allocation
func (h *Heap) allocatedBlock(p Pointer) (int, error) {
	block, err := h.payloadBlock(p)
	if err != nil {
		return 0, err
	}

	header := h.region.Tag(block)
	if header.IsFree() {
		return 0, errors.Wrapf(heapmm.ErrInvalidPointer, "pointer %#x refers to a free block", int(p))
	}

	size := header.Size()
	if size == 0 || size%metadata.MinBlockSize != 0 || block+size > h.end {
		return 0, errors.Wrapf(heapmm.ErrInvalidPointer, "pointer %#x has an invalid header (%s)", int(p), header)
	}

	footer := h.region.Tag(block + size - metadata.WordSize)
	if footer != header {
		return 0, errors.Wrapf(heapmm.ErrInvalidPointer, "pointer %#x header (%s) does not match footer (%s)", int(p), header, footer)
	}

	return block, nil
}

// usable returns an error if a fatal error has already been recorded
func (h *Heap) usable() error {
	if h.failure != nil {
		return errors.Wrap(h.failure, "heap is unusable after a fatal error")
	}

	return nil
}
