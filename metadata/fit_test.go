package metadata_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/metadata"
)

type testBlock struct {
	size int
	free bool
}

func free(size int) testBlock      { return testBlock{size: size, free: true} }
func allocated(size int) testBlock { return testBlock{size: size} }

func buildWalker(t *testing.T, blocks ...testBlock) metadata.Walker {
	t.Helper()

	total := 0
	for _, block := range blocks {
		total += block.size
	}

	start := metadata.MinBlockSize
	region := make(metadata.Region, start+total+metadata.WordSize)
	region.SetTag(start-metadata.WordSize, metadata.SentinelTag)

	offset := start
	for _, block := range blocks {
		status := metadata.StatusAllocated
		if block.free {
			status = metadata.StatusFree
		}
		region.WriteBlock(offset, block.size, status)
		offset += block.size
	}
	region.SetTag(offset, metadata.SentinelTag)

	return metadata.Walker{Region: region, Start: start, End: offset}
}

func newSearcher(t *testing.T, policy metadata.FitPolicy, cursor *metadata.Cursor) metadata.BlockSearcher {
	t.Helper()

	searcher, err := metadata.NewBlockSearcher(policy, cursor, nil)
	require.NoError(t, err)
	require.Equal(t, policy, searcher.Policy())
	return searcher
}

func TestFitPoliciesDiffer(t *testing.T) {
	// Free blocks of 96, 160 and 64 bytes separated by allocations
	w := buildWalker(t, free(96), allocated(32), free(160), allocated(32), free(64), allocated(32))

	var cursor metadata.Cursor

	block, found := newSearcher(t, metadata.FitFirst, nil).FindFreeBlock(w, 64)
	require.True(t, found)
	require.Equal(t, 32, block)

	block, found = newSearcher(t, metadata.FitBest, nil).FindFreeBlock(w, 64)
	require.True(t, found)
	require.Equal(t, 352, block)

	block, found = newSearcher(t, metadata.FitBest, nil).FindFreeBlock(w, 128)
	require.True(t, found)
	require.Equal(t, 160, block)

	cursor.Set(128)
	block, found = newSearcher(t, metadata.FitNext, &cursor).FindFreeBlock(w, 64)
	require.True(t, found)
	require.Equal(t, 160, block)

	offset, ok := cursor.Offset()
	require.True(t, ok)
	require.Equal(t, 160, offset)
}

func TestBestFitPrefersFirstOfEqualSizes(t *testing.T) {
	w := buildWalker(t, free(128), allocated(32), free(96), allocated(32), free(96), allocated(32))

	block, found := newSearcher(t, metadata.FitBest, nil).FindFreeBlock(w, 64)
	require.True(t, found)
	require.Equal(t, 192, block)
}

func TestBestFitStopsAtExactFit(t *testing.T) {
	w := buildWalker(t, free(64), allocated(32), free(64), allocated(32))

	var inspected []int
	searcher, err := metadata.NewBlockSearcher(metadata.FitBest, nil, func(block int, tag metadata.Tag) {
		inspected = append(inspected, block)
	})
	require.NoError(t, err)

	block, found := searcher.FindFreeBlock(w, 64)
	require.True(t, found)
	require.Equal(t, 32, block)
	require.Equal(t, []int{32}, inspected)
}

func TestNextFitWrapsAround(t *testing.T) {
	w := buildWalker(t, free(32), allocated(4000))

	var cursor metadata.Cursor
	cursor.Set(64)

	block, found := newSearcher(t, metadata.FitNext, &cursor).FindFreeBlock(w, 32)
	require.True(t, found)
	require.Equal(t, 32, block)

	offset, _ := cursor.Offset()
	require.Equal(t, 32, offset)
}

func TestNextFitWithoutCursorStartsAtBeginning(t *testing.T) {
	w := buildWalker(t, allocated(32), free(64), free(128))

	var cursor metadata.Cursor
	block, found := newSearcher(t, metadata.FitNext, &cursor).FindFreeBlock(w, 64)
	require.True(t, found)
	require.Equal(t, 64, block)
}

func TestSearchMiss(t *testing.T) {
	w := buildWalker(t, free(64), allocated(32), free(96))

	var cursor metadata.Cursor
	cursor.Set(128)

	for _, searcher := range []metadata.BlockSearcher{
		newSearcher(t, metadata.FitFirst, nil),
		newSearcher(t, metadata.FitNext, &cursor),
		newSearcher(t, metadata.FitBest, nil),
	} {
		_, found := searcher.FindFreeBlock(w, 128)
		require.False(t, found, searcher.Policy().String())
	}

	// A failed next-fit search leaves the cursor alone
	offset, _ := cursor.Offset()
	require.Equal(t, 128, offset)
}

func TestSearchIgnoresAllocatedBlocks(t *testing.T) {
	w := buildWalker(t, allocated(512), free(32))

	block, found := newSearcher(t, metadata.FitFirst, nil).FindFreeBlock(w, 64)
	require.False(t, found)
	require.Equal(t, w.End, block)
}

func TestNewBlockSearcherErrors(t *testing.T) {
	_, err := metadata.NewBlockSearcher(metadata.FitPolicy(42), nil, nil)
	require.True(t, errors.Is(err, heapmm.ErrInvalidPolicy))

	_, err = metadata.NewBlockSearcher(metadata.FitNext, nil, nil)
	require.Error(t, err)
}

func TestCursorRelocate(t *testing.T) {
	var cursor metadata.Cursor
	require.False(t, cursor.Relocate(0, 32))

	cursor.Set(128)
	require.False(t, cursor.Relocate(96, 32))
	require.True(t, cursor.Relocate(128, 64))

	offset, ok := cursor.Offset()
	require.True(t, ok)
	require.Equal(t, 64, offset)

	cursor.Reset()
	_, ok = cursor.Offset()
	require.False(t, ok)
}

func TestWalkerNavigation(t *testing.T) {
	w := buildWalker(t, allocated(64), free(96), allocated(32))

	require.Equal(t, 96, w.Next(32))
	require.Equal(t, 192, w.Next(96))
	require.Equal(t, w.End, w.Next(192))

	require.Equal(t, 96, w.Prev(192))
	require.Equal(t, 32, w.Prev(96))
	require.Equal(t, 32, w.Prev(32))

	require.Equal(t, w.Header(96), w.Footer(96))
	require.True(t, w.Contains(32))
	require.False(t, w.Contains(w.End))

	var visited []testBlock
	require.NoError(t, w.VisitAllBlocks(func(offset int, size int, isFree bool) error {
		visited = append(visited, testBlock{size: size, free: isFree})
		return nil
	}))
	require.Equal(t, []testBlock{allocated(64), free(96), allocated(32)}, visited)
}

func TestWalkerDetectsCorruption(t *testing.T) {
	w := buildWalker(t, allocated(64), free(96))
	w.Region.SetTag(96, metadata.Tag(0))

	err := w.VisitAllBlocks(func(offset int, size int, free bool) error { return nil })
	require.True(t, errors.Is(err, heapmm.ErrCorrupt))

	w = buildWalker(t, allocated(64), free(96))
	w.Region.SetTag(96, metadata.NewTag(4096, metadata.StatusFree))

	err = w.VisitAllBlocks(func(offset int, size int, free bool) error { return nil })
	require.True(t, errors.Is(err, heapmm.ErrCorrupt))
}

func TestParseFitPolicy(t *testing.T) {
	for name, expected := range map[string]metadata.FitPolicy{
		"first":    metadata.FitFirst,
		"FirstFit": metadata.FitFirst,
		"next-fit": metadata.FitNext,
		" best ":   metadata.FitBest,
		"best_fit": metadata.FitBest,
	} {
		policy, err := metadata.ParseFitPolicy(name)
		require.NoError(t, err, name)
		require.Equal(t, expected, policy, name)
	}

	_, err := metadata.ParseFitPolicy("worst")
	require.True(t, errors.Is(err, heapmm.ErrInvalidPolicy))
}
