package heap

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/metadata"
)

// MismatchKind classifies a structural problem found by Check
type MismatchKind int

const (
	// MismatchFooter means a block's footer disagrees with its header
	MismatchFooter MismatchKind = iota + 1
	// MismatchZeroSize means a block header between the sentinels has size 0
	MismatchZeroSize
	// MismatchOverrun means a block extends past the high sentinel
	MismatchOverrun
	// MismatchSentinel means a sentinel half-block has been overwritten
	MismatchSentinel
)

var mismatchKindMapping = map[MismatchKind]string{
	MismatchFooter:   "FooterMismatch",
	MismatchZeroSize: "ZeroSize",
	MismatchOverrun:  "Overrun",
	MismatchSentinel: "Sentinel",
}

func (k MismatchKind) String() string {
	return mismatchKindMapping[k]
}

// Mismatch is one structural problem found by Check
type Mismatch struct {
	Kind   MismatchKind
	Offset int
	Header metadata.Tag
	Footer metadata.Tag
}

// BlockInfo describes one block as read from its header
type BlockInfo struct {
	Offset int
	Size   int
	Status metadata.Status
}

// Report is the result of Check
type Report struct {
	Blocks     []BlockInfo
	Mismatches []Mismatch
	// Terminated is true when traversal ended exactly at the high sentinel
	Terminated bool
}

// Coherent returns true if the block structure had no mismatches and traversal ended at the
// high sentinel
func (r Report) Coherent() bool {
	return r.Terminated && len(r.Mismatches) == 0
}

// Check walks every block from the logical start of the heap to its end, writing a dump of
// the heap to w and collecting every mismatch it finds. It does not repair anything. w may be
// nil.
func (h *Heap) Check(w io.Writer) Report {
	if w == nil {
		w = io.Discard
	}

	var report Report
	rule := strings.Repeat("-", 97)

	fmt.Fprintf(w, "\n%s mm_check %s\n", strings.Repeat("-", 41), strings.Repeat("-", 46))
	fmt.Fprintf(w, "  raw start:              %#x\n", h.rawStart)
	fmt.Fprintf(w, "  raw end:                %#x\n", h.rawEnd)
	fmt.Fprintf(w, "  heap start:             %#x\n", h.start)
	fmt.Fprintf(w, "  heap end:               %#x\n", h.end)
	if cursor, ok := h.cursor.Offset(); ok {
		fmt.Fprintf(w, "  search cursor:          %#x\n", cursor)
	} else {
		fmt.Fprintf(w, "  search cursor:          none\n")
	}
	fmt.Fprintf(w, "  policy:                 %s\n", h.policy)
	fmt.Fprintln(w)

	low := h.region.Tag(h.start - metadata.WordSize)
	high := h.region.Tag(h.end)
	fmt.Fprintf(w, "  initial sentinel:       %#x: size: %6x, status: %d\n", h.start-metadata.WordSize, low.Size(), low.Status())
	fmt.Fprintf(w, "  end sentinel:           %#x: size: %6x, status: %d\n", h.end, high.Size(), high.Status())
	if low != metadata.SentinelTag {
		report.Mismatches = append(report.Mismatches, Mismatch{Kind: MismatchSentinel, Offset: h.start - metadata.WordSize, Header: low})
		fmt.Fprintf(w, "    --> ERROR: initial sentinel has been overwritten\n")
	}
	if high != metadata.SentinelTag {
		report.Mismatches = append(report.Mismatches, Mismatch{Kind: MismatchSentinel, Offset: h.end, Header: high})
		fmt.Fprintf(w, "    --> ERROR: end sentinel has been overwritten\n")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  blocks:\n")

	block := h.start
	for block < h.end {
		header := h.region.Tag(block)
		size := header.Size()
		fmt.Fprintf(w, "    %#x: size: %6x, status: %d\n", block, size, header.Status())
		report.Blocks = append(report.Blocks, BlockInfo{Offset: block, Size: size, Status: header.Status()})

		if size == 0 {
			report.Mismatches = append(report.Mismatches, Mismatch{Kind: MismatchZeroSize, Offset: block, Header: header})
			fmt.Fprintf(w, "    WARNING: size 0 detected, aborting traversal.\n")
			break
		}

		if block+size > h.end {
			report.Mismatches = append(report.Mismatches, Mismatch{Kind: MismatchOverrun, Offset: block, Header: header})
			fmt.Fprintf(w, "    --> ERROR: block runs past the end sentinel, aborting traversal.\n")
			block += size
			break
		}

		footerOffset := block + size - metadata.WordSize
		footer := h.region.Tag(footerOffset)
		if footer != header {
			report.Mismatches = append(report.Mismatches, Mismatch{Kind: MismatchFooter, Offset: block, Header: header, Footer: footer})
			fmt.Fprintf(w, "    --> ERROR: footer at %#x with different properties: size: %x, status: %d\n",
				footerOffset, footer.Size(), footer.Status())
		}

		block += size
	}

	report.Terminated = block == h.end

	fmt.Fprintln(w)
	if report.Coherent() {
		fmt.Fprintf(w, "  Block structure coherent.\n")
	}
	fmt.Fprintln(w, rule)

	return report
}

// Validate checks every structural invariant of the heap and returns the first violation:
// matching tags, block sizes, no two adjacent free blocks, block sizes summing to the heap
// span and a search cursor that references a current block.
func (h *Heap) Validate() error {
	if h.region.Tag(h.start-metadata.WordSize) != metadata.SentinelTag {
		return errors.Wrap(heapmm.ErrCorrupt, "initial sentinel has been overwritten")
	}
	if h.region.Tag(h.end) != metadata.SentinelTag {
		return errors.Wrap(heapmm.ErrCorrupt, "end sentinel has been overwritten")
	}

	cursor, cursorSet := h.cursor.Offset()
	cursorFound := false
	prevFree := false
	total := 0

	w := h.walker()
	err := w.VisitAllBlocks(func(offset int, size int, free bool) error {
		if size%metadata.MinBlockSize != 0 {
			return errors.Wrapf(heapmm.ErrCorrupt, "block at offset %#x has size %#x, which is not a multiple of %d", offset, size, metadata.MinBlockSize)
		}

		if w.Footer(offset) != w.Header(offset) {
			return errors.Wrapf(heapmm.ErrCorrupt, "block at offset %#x has header (%s) but footer (%s)", offset, w.Header(offset), w.Footer(offset))
		}

		if free && prevFree {
			return errors.Wrapf(heapmm.ErrCorrupt, "free block at offset %#x follows another free block", offset)
		}

		if cursorSet && cursor == offset {
			cursorFound = true
		}

		prevFree = free
		total += size
		return nil
	})
	if err != nil {
		return err
	}

	if total != h.end-h.start {
		return errors.Wrapf(heapmm.ErrCorrupt, "the heap spans %#x bytes, but its blocks only added up to %#x", h.end-h.start, total)
	}

	if cursorSet && !cursorFound {
		return errors.Wrapf(heapmm.ErrCorrupt, "the search cursor references %#x, which is not the start of a block", cursor)
	}

	return nil
}
