package metadata

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmm"
)

// SearchTrace is called for every block a BlockSearcher inspects. It exists for diagnostic
// logging and must not modify the heap.
type SearchTrace func(block int, tag Tag)

// BlockSearcher finds a free block of at least size bytes. size already includes the header
// and footer and is a multiple of MinBlockSize. A search that finds nothing returns false: the
// caller is expected to grow the heap and search again.
type BlockSearcher interface {
	Policy() FitPolicy
	FindFreeBlock(w Walker, size int) (int, bool)
}

// NewBlockSearcher creates the searcher for a fit policy. The cursor is only used, and only
// updated, by FitNext. trace may be nil.
func NewBlockSearcher(policy FitPolicy, cursor *Cursor, trace SearchTrace) (BlockSearcher, error) {
	switch policy {
	case FitFirst:
		return &firstFitSearcher{trace: trace}, nil
	case FitNext:
		if cursor == nil {
			return nil, errors.New("next fit requires a cursor")
		}
		return &nextFitSearcher{cursor: cursor, trace: trace}, nil
	case FitBest:
		return &bestFitSearcher{trace: trace}, nil
	}

	return nil, errors.Wrapf(heapmm.ErrInvalidPolicy, "policy %d", policy)
}

// scan visits blocks in [from, to) and stops early when match returns true. It returns the
// block where it stopped, or to.
func scan(w Walker, from, to int, trace SearchTrace, match func(block int, tag Tag) bool) int {
	block := from
	for block < to {
		tag := w.Header(block)
		if trace != nil {
			trace(block, tag)
		}

		if match(block, tag) {
			return block
		}

		if tag.Size() == 0 {
			// Corrupt heap, stop rather than spin
			return to
		}
		block += tag.Size()
	}

	return to
}

type firstFitSearcher struct {
	trace SearchTrace
}

func (s *firstFitSearcher) Policy() FitPolicy { return FitFirst }

func (s *firstFitSearcher) FindFreeBlock(w Walker, size int) (int, bool) {
	block := scan(w, w.Start, w.End, s.trace, func(block int, tag Tag) bool {
		return tag.IsFree() && tag.Size() >= size
	})

	return block, block < w.End
}

type nextFitSearcher struct {
	cursor *Cursor
	trace  SearchTrace
}

func (s *nextFitSearcher) Policy() FitPolicy { return FitNext }

func (s *nextFitSearcher) FindFreeBlock(w Walker, size int) (int, bool) {
	fits := func(block int, tag Tag) bool {
		return tag.IsFree() && tag.Size() >= size
	}

	begin, ok := s.cursor.Offset()
	if !ok || !w.Contains(begin) {
		begin = w.Start
	}

	block := scan(w, begin, w.End, s.trace, fits)
	if block >= w.End && begin > w.Start {
		// Wrap around and search the part of the heap before the cursor
		block = scan(w, w.Start, begin, s.trace, fits)
		if block >= begin {
			block = w.End
		}
	}

	if block >= w.End {
		return 0, false
	}

	s.cursor.Set(block)
	return block, true
}

type bestFitSearcher struct {
	trace SearchTrace
}

func (s *bestFitSearcher) Policy() FitPolicy { return FitBest }

func (s *bestFitSearcher) FindFreeBlock(w Walker, size int) (int, bool) {
	bestBlock := -1
	bestSize := 0

	scan(w, w.Start, w.End, s.trace, func(block int, tag Tag) bool {
		if tag.IsFree() && tag.Size() >= size && (bestBlock < 0 || tag.Size() < bestSize) {
			bestBlock = block
			bestSize = tag.Size()
		}

		// An exact fit cannot be beaten
		return bestBlock >= 0 && bestSize == size
	})

	if bestBlock < 0 {
		return 0, false
	}

	return bestBlock, true
}
