package metadata

// Cursor remembers the block where the previous next-fit search ended. It must be relocated
// whenever the block it references stops existing.
type Cursor struct {
	offset int
	valid  bool
}

// Offset returns the referenced block and whether the cursor is set
func (c *Cursor) Offset() (int, bool) {
	return c.offset, c.valid
}

func (c *Cursor) Set(block int) {
	c.offset = block
	c.valid = true
}

func (c *Cursor) Reset() {
	c.offset = 0
	c.valid = false
}

// Relocate moves the cursor to the block at to if it currently references from. It returns
// true if the cursor moved.
func (c *Cursor) Relocate(from, to int) bool {
	if !c.valid || c.offset != from {
		return false
	}

	c.offset = to
	return true
}
