package trace

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/heap"
)

type liveAllocation struct {
	pointer heap.Pointer
	size    int
}

// Result summarizes a replay
type Result struct {
	Operations      int
	Allocations     int
	Reallocations   int
	Releases        int
	Checks          int
	PeakAllocated   int
	PeakHeapBytes   int
	FinalStatistics heapmm.DetailedStatistics
}

// WriteJSON writes the result as a JSON object
func (r *Result) WriteJSON(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	obj.Name("Operations").Int(r.Operations)
	obj.Name("Allocations").Int(r.Allocations)
	obj.Name("Reallocations").Int(r.Reallocations)
	obj.Name("Releases").Int(r.Releases)
	obj.Name("Checks").Int(r.Checks)
	obj.Name("PeakAllocatedBytes").Int(r.PeakAllocated)
	obj.Name("PeakHeapBytes").Int(r.PeakHeapBytes)

	stats := obj.Name("Final").Object()
	defer stats.End()

	stats.Name("BlockCount").Int(r.FinalStatistics.BlockCount)
	stats.Name("AllocationCount").Int(r.FinalStatistics.AllocationCount)
	stats.Name("FreeBlockCount").Int(r.FinalStatistics.FreeBlockCount)
	stats.Name("HeapBytes").Int(r.FinalStatistics.HeapBytes)
	stats.Name("AllocationBytes").Int(r.FinalStatistics.AllocationBytes)
	if r.FinalStatistics.FreeBlockCount > 0 {
		stats.Name("LargestFreeBlock").Int(r.FinalStatistics.FreeBlockSizeMax)
	}
}

// Replayer applies trace operations to a heap. Every payload is filled with a pattern derived
// from its id, and the pattern is verified whenever the payload is resized or released.
type Replayer struct {
	heap *heap.Heap
	live *swiss.Map[int, liveAllocation]

	// CheckOutput receives the dump written by each OpCheck. It may be nil.
	CheckOutput io.Writer

	result Result
}

func NewReplayer(h *heap.Heap) *Replayer {
	return &Replayer{
		heap: h,
		live: swiss.NewMap[int, liveAllocation](64),
	}
}

// Run applies every op in order and stops at the first failure
func (r *Replayer) Run(ops []Op) (Result, error) {
	for _, op := range ops {
		err := r.Apply(op)
		if err != nil {
			return r.Result(), err
		}
	}

	return r.Result(), nil
}

// Result returns the summary of everything applied so far
func (r *Replayer) Result() Result {
	result := r.result
	result.FinalStatistics.Clear()
	r.heap.AddDetailedStatistics(&result.FinalStatistics)
	return result
}

// LiveCount returns the number of ids currently bound to allocations
func (r *Replayer) LiveCount() int {
	return r.live.Count()
}

// Apply applies a single op
func (r *Replayer) Apply(op Op) error {
	r.result.Operations++

	var err error
	switch op.Kind {
	case OpAllocate:
		err = r.allocate(op, false)
	case OpAllocateZeroed:
		err = r.allocate(op, true)
	case OpReallocate:
		err = r.reallocate(op)
	case OpRelease:
		err = r.release(op)
	case OpCheck:
		err = r.check()
	default:
		err = errors.Newf("unknown operation %q", byte(op.Kind))
	}

	if err != nil {
		return errors.Wrapf(err, "line %d: %s", op.Line, op.Kind)
	}

	r.recordPeaks()
	return nil
}

func (r *Replayer) allocate(op Op, zeroed bool) error {
	if r.live.Has(op.ID) {
		return errors.Newf("id %d is already bound to an allocation", op.ID)
	}

	var pointer heap.Pointer
	var err error
	size := op.Size

	if zeroed {
		size, err = heapmm.CheckedMul(op.Count, op.Size)
		if err != nil {
			return err
		}
		pointer, err = r.heap.AllocateZeroed(op.Count, op.Size)
	} else {
		pointer, err = r.heap.Allocate(op.Size)
	}
	if err != nil {
		return err
	}

	payload := r.heap.Bytes(pointer)
	if len(payload) < size {
		return errors.Newf("payload at %#x holds %d bytes, but %d were requested", int(pointer), len(payload), size)
	}

	if zeroed {
		for i, b := range payload[:size] {
			if b != 0 {
				return errors.Newf("zeroed payload at %#x has byte %#x at index %d", int(pointer), b, i)
			}
		}
	}

	fill(payload[:size], op.ID, 0)
	r.live.Put(op.ID, liveAllocation{pointer: pointer, size: size})
	r.result.Allocations++
	return nil
}

func (r *Replayer) reallocate(op Op) error {
	alloc, ok := r.live.Get(op.ID)
	if !ok {
		return errors.Newf("id %d is not bound to an allocation", op.ID)
	}

	pointer, err := r.heap.Reallocate(alloc.pointer, op.Size)
	if err != nil {
		return err
	}
	r.result.Reallocations++

	if op.Size == 0 {
		r.live.Delete(op.ID)
		return nil
	}

	payload := r.heap.Bytes(pointer)
	if len(payload) < op.Size {
		return errors.Newf("payload at %#x holds %d bytes, but %d were requested", int(pointer), len(payload), op.Size)
	}

	preserved := min(alloc.size, op.Size)
	err = verify(payload[:preserved], op.ID, 0)
	if err != nil {
		return errors.Wrapf(err, "moving %#x to %#x", int(alloc.pointer), int(pointer))
	}

	fill(payload[preserved:op.Size], op.ID, preserved)
	r.live.Put(op.ID, liveAllocation{pointer: pointer, size: op.Size})
	return nil
}

func (r *Replayer) release(op Op) error {
	alloc, ok := r.live.Get(op.ID)
	if !ok {
		return errors.Newf("id %d is not bound to an allocation", op.ID)
	}

	payload := r.heap.Bytes(alloc.pointer)
	if len(payload) < alloc.size {
		return errors.Newf("allocation of id %d at %#x is no longer live", op.ID, int(alloc.pointer))
	}

	err := verify(payload[:alloc.size], op.ID, 0)
	if err != nil {
		return err
	}

	err = r.heap.Release(alloc.pointer)
	if err != nil {
		return err
	}

	r.live.Delete(op.ID)
	r.result.Releases++
	return nil
}

func (r *Replayer) check() error {
	r.result.Checks++

	report := r.heap.Check(r.CheckOutput)
	if !report.Coherent() {
		return errors.Wrapf(heapmm.ErrCorrupt, "check found %d mismatches", len(report.Mismatches))
	}

	return r.heap.Validate()
}

func (r *Replayer) recordPeaks() {
	var stats heapmm.Statistics
	r.heap.AddStatistics(&stats)

	if stats.AllocationBytes > r.result.PeakAllocated {
		r.result.PeakAllocated = stats.AllocationBytes
	}
	if stats.HeapBytes > r.result.PeakHeapBytes {
		r.result.PeakHeapBytes = stats.HeapBytes
	}
}

func patternByte(id int, index int) byte {
	return byte(id*31 + index)
}

func fill(payload []byte, id int, startIndex int) {
	for i := range payload {
		payload[i] = patternByte(id, startIndex+i)
	}
}

func verify(payload []byte, id int, startIndex int) error {
	for i, b := range payload {
		if b != patternByte(id, startIndex+i) {
			return errors.Wrapf(heapmm.ErrCorrupt, "payload of id %d differs at index %d", id, startIndex+i)
		}
	}

	return nil
}
