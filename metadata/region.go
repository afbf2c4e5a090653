package metadata

import "encoding/binary"

// Region is the raw byte range supplied by a memory provider. Offsets into it are the
// heap's addresses.
type Region []byte

// Tag reads the boundary tag stored at off
func (r Region) Tag(off int) Tag {
	return Tag(binary.LittleEndian.Uint64(r[off : off+WordSize]))
}

// SetTag writes a boundary tag at off
func (r Region) SetTag(off int, tag Tag) {
	binary.LittleEndian.PutUint64(r[off:off+WordSize], uint64(tag))
}

// WriteBlock writes matching header and footer tags for a block of the given size at off
func (r Region) WriteBlock(off int, size int, status Status) {
	tag := NewTag(size, status)
	r.SetTag(off, tag)
	r.SetTag(off+size-WordSize, tag)
}
