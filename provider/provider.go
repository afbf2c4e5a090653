// Package provider supplies the contiguous, growable byte regions that heaps are built on.
package provider

import "github.com/cockroachdb/errors"

// ErrNotSupported is returned by NewMmapProvider on platforms without mmap
var ErrNotSupported = errors.New("mmap provider is not supported on this platform")

//go:generate mockgen -source provider.go -destination mocks/provider.go -package mocks

// Provider is a contiguous region of memory that can only grow at its high end, in the manner
// of a process data segment and its break. Addresses within the region are offsets into the
// slice returned by Bytes.
type Provider interface {
	// Extent returns the offset the region started at and the current break. A region that
	// has never been grown returns start == end.
	Extent() (start int, end int)
	// PageSize returns the page size of the memory system backing the region
	PageSize() int
	// Grow extends the break by increment bytes and returns the new break. It must fail
	// without changing the region if the increment cannot be satisfied.
	Grow(increment int) (int, error)
	// Bytes returns the region's memory from offset 0 up to the current break. Slices
	// returned before a Grow remain valid afterward.
	Bytes() []byte
}
