//go:build unix

package provider_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/provider"
)

func TestMmapProvider(t *testing.T) {
	p, err := provider.NewMmapProvider(1 << 20)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, p.Close())
	}()

	pageSize := p.PageSize()
	require.Greater(t, pageSize, 0)

	start, end := p.Extent()
	require.Equal(t, 0, start)
	require.Equal(t, 0, end)

	brk, err := p.Grow(100)
	require.NoError(t, err)
	require.Equal(t, 100, brk)

	// The whole page is committed, so growing within it only moves the break
	brk, err = p.Grow(pageSize)
	require.NoError(t, err)
	require.Equal(t, 100+pageSize, brk)

	data := p.Bytes()
	require.Len(t, data, brk)
	data[0] = 1
	data[brk-1] = 2
	require.Equal(t, byte(2), p.Bytes()[brk-1])

	_, err = p.Grow(1 << 21)
	require.True(t, errors.Is(err, heapmm.ErrOutOfMemory))
}

func TestMmapProviderClosed(t *testing.T) {
	p, err := provider.NewMmapProvider(4096)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Grow(64)
	require.Error(t, err)
}
