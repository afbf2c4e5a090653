package heap_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/heap"
	"github.com/vkngwrapper/heapmm/metadata"
)

func TestCheckCoherentHeap(t *testing.T) {
	h, _ := newHeap(t, heap.CreateOptions{})

	var dump bytes.Buffer
	report := h.Check(&dump)
	require.True(t, report.Coherent())
	require.True(t, report.Terminated)
	require.Empty(t, report.Mismatches)

	out := dump.String()
	require.Contains(t, out, "mm_check")
	require.Regexp(t, `heap start:\s+0x20\n`, out)
	require.Regexp(t, `search cursor:\s+none\n`, out)
	require.Regexp(t, `0x20: size:\s+fc0, status: 0\n`, out)
	require.Contains(t, out, "Block structure coherent.")
}

func TestCheckFooterMismatch(t *testing.T) {
	h, p := newHeap(t, heap.CreateOptions{})

	ptr, err := h.Allocate(100)
	require.NoError(t, err)

	footer := int(ptr) + h.UsableSize(ptr)
	p.Bytes()[footer] ^= 0x40

	var dump bytes.Buffer
	report := h.Check(&dump)
	require.False(t, report.Coherent())
	require.True(t, report.Terminated)
	require.Len(t, report.Mismatches, 1)
	require.Equal(t, heap.MismatchFooter, report.Mismatches[0].Kind)
	require.Equal(t, 32, report.Mismatches[0].Offset)
	require.Contains(t, dump.String(), "ERROR: footer")
	require.NotContains(t, dump.String(), "Block structure coherent.")

	require.True(t, errors.Is(h.Validate(), heapmm.ErrCorrupt))

	// The damaged allocation is no longer accepted as a payload
	require.True(t, errors.Is(h.Release(ptr), heapmm.ErrInvalidPointer))
	require.Nil(t, h.Bytes(ptr))
}

func TestCheckZeroSizeBlock(t *testing.T) {
	h, p := newHeap(t, heap.CreateOptions{})

	_, err := h.Allocate(100)
	require.NoError(t, err)
	clear(p.Bytes()[160:168])

	var dump bytes.Buffer
	report := h.Check(&dump)
	require.False(t, report.Coherent())
	require.False(t, report.Terminated)
	require.Equal(t, heap.MismatchZeroSize, report.Mismatches[0].Kind)
	require.Equal(t, 160, report.Mismatches[0].Offset)
	require.Contains(t, dump.String(), "WARNING: size 0 detected, aborting traversal.")

	require.True(t, errors.Is(h.Validate(), heapmm.ErrCorrupt))
}

func TestCheckOverwrittenSentinel(t *testing.T) {
	h, p := newHeap(t, heap.CreateOptions{})
	_, end := h.Bounds()
	p.Bytes()[end] = 0

	report := h.Check(nil)
	require.False(t, report.Coherent())
	require.Equal(t, heap.MismatchSentinel, report.Mismatches[0].Kind)
	require.Equal(t, "Sentinel", report.Mismatches[0].Kind.String())
	require.True(t, errors.Is(h.Validate(), heapmm.ErrCorrupt))
}

type blockJSON struct {
	Offset      int
	Size        int
	Type        string
	UsableBytes *int
}

type mapJSON struct {
	Policy       string
	RawStart     int
	RawEnd       int
	Start        int
	End          int
	Cursor       *int
	TotalBytes   int
	UnusedBytes  int
	Allocations  int
	UnusedRanges int
	Blocks       []blockJSON
}

func printMap(t *testing.T, h *heap.Heap) mapJSON {
	t.Helper()

	writer := jwriter.NewWriter()
	h.PrintDetailedMap(&writer)
	require.NoError(t, writer.Error())

	var out mapJSON
	require.NoError(t, json.Unmarshal(writer.Bytes(), &out))
	return out
}

func TestPrintDetailedMap(t *testing.T) {
	h, _ := newHeap(t, heap.CreateOptions{})

	_, err := h.Allocate(100)
	require.NoError(t, err)

	usable := 112
	require.Equal(t, mapJSON{
		Policy:       "FirstFit",
		RawStart:     0,
		RawEnd:       4096,
		Start:        32,
		End:          4064,
		TotalBytes:   4032,
		UnusedBytes:  3904,
		Allocations:  1,
		UnusedRanges: 1,
		Blocks: []blockJSON{
			{Offset: 32, Size: 128, Type: metadata.StatusAllocated.String(), UsableBytes: &usable},
			{Offset: 160, Size: 3904, Type: metadata.StatusFree.String()},
		},
	}, printMap(t, h))
}

func TestPrintDetailedMapCursor(t *testing.T) {
	h, _ := newHeap(t, heap.CreateOptions{Policy: metadata.FitNext})

	_, err := h.Allocate(10)
	require.NoError(t, err)
	_, err = h.Allocate(10)
	require.NoError(t, err)

	out := printMap(t, h)
	require.Equal(t, "NextFit", out.Policy)
	require.NotNil(t, out.Cursor)
	require.Equal(t, 64, *out.Cursor)
}
