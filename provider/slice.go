package provider

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmm"
)

const defaultPageSize = 4096

// SliceProvider is a Provider backed by ordinary Go memory. The full limit is reserved as
// slice capacity up front so that growing never moves the data.
type SliceProvider struct {
	data     []byte
	base     int
	pageSize int
}

var _ Provider = &SliceProvider{}

type SliceOption func(p *SliceProvider)

// WithPageSize overrides the reported page size. A page size of 0 is allowed so that heaps
// can be tested against a misconfigured provider.
func WithPageSize(pageSize int) SliceOption {
	return func(p *SliceProvider) {
		p.pageSize = pageSize
	}
}

// WithBase starts the region at a nonzero offset. The bytes below base belong to someone
// else and are never handed out.
func WithBase(base int) SliceOption {
	return func(p *SliceProvider) {
		p.base = base
		p.data = p.data[:base]
	}
}

// WithDirtyBreak moves the break past the starting offset, as if the region had already been
// used by someone else.
func WithDirtyBreak(used int) SliceOption {
	return func(p *SliceProvider) {
		p.data = p.data[:len(p.data)+used]
	}
}

// NewSliceProvider creates a provider that can grow to at most limit bytes
func NewSliceProvider(limit int, opts ...SliceOption) (*SliceProvider, error) {
	if limit <= 0 {
		return nil, errors.Wrapf(heapmm.ErrInvalidSize, "limit %d", limit)
	}

	p := &SliceProvider{
		data:     make([]byte, 0, limit),
		pageSize: defaultPageSize,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

func (p *SliceProvider) Extent() (int, int) {
	return p.base, len(p.data)
}

func (p *SliceProvider) PageSize() int {
	return p.pageSize
}

func (p *SliceProvider) Grow(increment int) (int, error) {
	if increment < 0 {
		return len(p.data), errors.Wrapf(heapmm.ErrInvalidSize, "increment %d", increment)
	}

	if increment > cap(p.data)-len(p.data) {
		return len(p.data), errors.Wrapf(heapmm.ErrOutOfMemory, "break at %#x, limit %#x, requested %#x more", len(p.data), cap(p.data), increment)
	}

	p.data = p.data[:len(p.data)+increment]
	return len(p.data), nil
}

func (p *SliceProvider) Bytes() []byte {
	return p.data
}

// Limit returns the largest break the provider can reach
func (p *SliceProvider) Limit() int {
	return cap(p.data)
}
