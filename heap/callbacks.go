package heap

// GrowHeapCallback is called after the heap has been extended and the new capacity has been
// merged into the block structure
type GrowHeapCallback func(
	heap *Heap,
	oldEnd int,
	newEnd int,
	userData interface{},
)

// FatalCallback is called once when the heap hits an unrecoverable error. After it returns
// every operation on the heap fails. Binaries typically log and exit from here.
type FatalCallback func(
	heap *Heap,
	err error,
	userData interface{},
)

type CallbackOptions struct {
	Grow     GrowHeapCallback
	Fatal    FatalCallback
	UserData interface{}
}

type heapCallbacks struct {
	Callbacks *CallbackOptions
	Heap      *Heap
}

func (c *heapCallbacks) Grow(oldEnd, newEnd int) {
	if c.Callbacks != nil && c.Callbacks.Grow != nil {
		c.Callbacks.Grow(c.Heap, oldEnd, newEnd, c.Callbacks.UserData)
	}
}

func (c *heapCallbacks) Fatal(err error) {
	if c.Callbacks != nil && c.Callbacks.Fatal != nil {
		c.Callbacks.Fatal(c.Heap, err, c.Callbacks.UserData)
	}
}
