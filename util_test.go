package heapmm_test

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapmm"
)

func TestAlign(t *testing.T) {
	require.Equal(t, 32, heapmm.AlignUp(1, 32))
	require.Equal(t, 32, heapmm.AlignUp(32, 32))
	require.Equal(t, 64, heapmm.AlignUp(33, 32))
	require.Equal(t, 0, heapmm.AlignUp(0, 32))

	require.Equal(t, 0, heapmm.AlignDown(31, 32))
	require.Equal(t, 4064, heapmm.AlignDown(4088, 32))
	require.Equal(t, uint(8192), heapmm.AlignUp(uint(4097), 4096))
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, heapmm.CheckPow2(4096, "increment"))
	require.NoError(t, heapmm.CheckPow2(uint(1), "increment"))

	err := heapmm.CheckPow2(100, "increment")
	require.Error(t, err)
	require.True(t, errors.Is(err, heapmm.PowerOfTwoError))
	require.Contains(t, err.Error(), "increment is 100")

	require.Error(t, heapmm.CheckPow2(0, "increment"))
}

func TestCheckedArithmetic(t *testing.T) {
	product, err := heapmm.CheckedMul(16, 4)
	require.NoError(t, err)
	require.Equal(t, 64, product)

	product, err = heapmm.CheckedMul(0, math.MaxInt)
	require.NoError(t, err)
	require.Equal(t, 0, product)

	_, err = heapmm.CheckedMul(math.MaxInt/2, 3)
	require.True(t, errors.Is(err, heapmm.ErrCapacityOverflow))

	sum, err := heapmm.CheckedAdd(math.MaxInt-1, 1)
	require.NoError(t, err)
	require.Equal(t, math.MaxInt, sum)

	_, err = heapmm.CheckedAdd(math.MaxInt, 1)
	require.True(t, errors.Is(err, heapmm.ErrCapacityOverflow))
}

func TestIsFatal(t *testing.T) {
	require.True(t, heapmm.IsFatal(errors.Wrap(heapmm.ErrOutOfMemory, "growing")))
	require.True(t, heapmm.IsFatal(heapmm.ErrHeapNotClean))
	require.True(t, heapmm.IsFatal(heapmm.ErrZeroPageSize))
	require.False(t, heapmm.IsFatal(heapmm.ErrCapacityOverflow))
	require.False(t, heapmm.IsFatal(errors.Wrap(heapmm.ErrInvalidPointer, "release")))
}

func TestDetailedStatistics(t *testing.T) {
	var stats heapmm.DetailedStatistics
	stats.Clear()

	stats.AddAllocation(64)
	stats.AddAllocation(32)
	stats.AddFreeBlock(128)

	var other heapmm.DetailedStatistics
	other.Clear()
	other.AddFreeBlock(32)

	stats.AddDetailedStatistics(&other)

	require.Equal(t, heapmm.DetailedStatistics{
		Statistics: heapmm.Statistics{
			BlockCount:      4,
			AllocationCount: 2,
			HeapBytes:       256,
			AllocationBytes: 96,
		},
		FreeBlockCount:    2,
		AllocationSizeMin: 32,
		AllocationSizeMax: 64,
		FreeBlockSizeMin:  32,
		FreeBlockSizeMax:  128,
	}, stats)
	require.Equal(t, 160, stats.FreeBytes())
}
