//go:build unix

package provider

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmm"
	"golang.org/x/sys/unix"
)

// MmapProvider is a Provider backed by an anonymous private mapping. The whole limit is
// reserved without access when the provider is created, and pages are made readable and
// writable as the break moves over them.
type MmapProvider struct {
	mapping   []byte
	brk       int
	committed int
	pageSize  int
}

var _ Provider = &MmapProvider{}

// NewMmapProvider reserves limit bytes of address space, rounded up to the system page size
func NewMmapProvider(limit int) (*MmapProvider, error) {
	pageSize := unix.Getpagesize()
	if limit <= 0 {
		return nil, errors.Wrapf(heapmm.ErrInvalidSize, "limit %d", limit)
	}
	limit = heapmm.AlignUp(limit, pageSize)

	mapping, err := unix.Mmap(-1, 0, limit, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(err, "reserving %d bytes", limit)
	}

	return &MmapProvider{
		mapping:  mapping,
		pageSize: pageSize,
	}, nil
}

func (p *MmapProvider) Extent() (int, int) {
	return 0, p.brk
}

func (p *MmapProvider) PageSize() int {
	return p.pageSize
}

func (p *MmapProvider) Grow(increment int) (int, error) {
	if p.mapping == nil {
		return p.brk, errors.New("provider has been closed")
	}
	if increment < 0 {
		return p.brk, errors.Wrapf(heapmm.ErrInvalidSize, "increment %d", increment)
	}
	if increment > len(p.mapping)-p.brk {
		return p.brk, errors.Wrapf(heapmm.ErrOutOfMemory, "break at %#x, limit %#x, requested %#x more", p.brk, len(p.mapping), increment)
	}

	newBreak := p.brk + increment
	if newBreak > p.committed {
		commitEnd := heapmm.AlignUp(newBreak, p.pageSize)
		err := unix.Mprotect(p.mapping[p.committed:commitEnd], unix.PROT_READ|unix.PROT_WRITE)
		if err != nil {
			return p.brk, errors.Mark(errors.Wrapf(err, "committing pages %#x-%#x", p.committed, commitEnd), heapmm.ErrOutOfMemory)
		}
		p.committed = commitEnd
	}

	p.brk = newBreak
	return p.brk, nil
}

func (p *MmapProvider) Bytes() []byte {
	return p.mapping[:p.brk]
}

// Close releases the mapping. Every slice obtained from Bytes becomes invalid.
func (p *MmapProvider) Close() error {
	if p.mapping == nil {
		return nil
	}

	err := unix.Munmap(p.mapping)
	p.mapping = nil
	p.brk = 0
	p.committed = 0
	return err
}
