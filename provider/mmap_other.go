//go:build !unix

package provider

type MmapProvider struct {
	SliceProvider
}

func NewMmapProvider(limit int) (*MmapProvider, error) {
	return nil, ErrNotSupported
}

func (p *MmapProvider) Close() error {
	return nil
}
