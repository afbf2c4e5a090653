package metadata_test

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/metadata"
)

func TestTagPacking(t *testing.T) {
	tag := metadata.NewTag(4032, metadata.StatusFree)
	require.Equal(t, 4032, tag.Size())
	require.Equal(t, metadata.StatusFree, tag.Status())
	require.True(t, tag.IsFree())

	tag = metadata.NewTag(96, metadata.StatusAllocated)
	require.Equal(t, metadata.Tag(97), tag)
	require.Equal(t, 96, tag.Size())
	require.False(t, tag.IsFree())
	require.Equal(t, "size: 0x60 (96), status: allocated", tag.String())

	require.Equal(t, 0, metadata.SentinelTag.Size())
	require.Equal(t, metadata.StatusAllocated, metadata.SentinelTag.Status())
}

func TestTagRejectsUnalignedSizes(t *testing.T) {
	require.Panics(t, func() { metadata.NewTag(48, metadata.StatusFree) })
	require.Panics(t, func() { metadata.NewTag(-32, metadata.StatusFree) })
	require.Panics(t, func() { metadata.NewTag(32, metadata.Status(9)) })
}

func TestBlockSize(t *testing.T) {
	cases := map[int]int{
		0:   32,
		1:   32,
		10:  32,
		16:  32,
		17:  64,
		20:  64,
		48:  64,
		49:  96,
		100: 128,
	}

	for payload, expected := range cases {
		size, err := metadata.BlockSize(payload)
		require.NoError(t, err)
		require.Equal(t, expected, size, "payload %d", payload)
		require.GreaterOrEqual(t, metadata.PayloadSize(size), payload)
	}

	_, err := metadata.BlockSize(-1)
	require.True(t, errors.Is(err, heapmm.ErrInvalidSize))

	_, err = metadata.BlockSize(math.MaxInt - 8)
	require.True(t, errors.Is(err, heapmm.ErrCapacityOverflow))
}

func TestRegionWriteBlock(t *testing.T) {
	region := make(metadata.Region, 128)
	region.WriteBlock(32, 64, metadata.StatusAllocated)

	require.Equal(t, metadata.NewTag(64, metadata.StatusAllocated), region.Tag(32))
	require.Equal(t, metadata.NewTag(64, metadata.StatusAllocated), region.Tag(88))
	require.Equal(t, metadata.Tag(0), region.Tag(40))
}
