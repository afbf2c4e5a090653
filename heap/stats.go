package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/metadata"
)

// AddStatistics sums this heap's block statistics into stats
func (h *Heap) AddStatistics(stats *heapmm.Statistics) {
	_ = h.walker().VisitAllBlocks(func(offset int, size int, free bool) error {
		stats.BlockCount++
		stats.HeapBytes += size
		if !free {
			stats.AllocationCount++
			stats.AllocationBytes += size
		}
		return nil
	})
}

// AddDetailedStatistics sums this heap's block statistics, including size extremes, into stats
func (h *Heap) AddDetailedStatistics(stats *heapmm.DetailedStatistics) {
	_ = h.walker().VisitAllBlocks(func(offset int, size int, free bool) error {
		if free {
			stats.AddFreeBlock(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

// PrintDetailedMap writes a JSON object describing the heap bounds and every block in it
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer) {
	var stats heapmm.DetailedStatistics
	stats.Clear()
	h.AddDetailedStatistics(&stats)

	obj := writer.Object()
	defer obj.End()

	obj.Name("Policy").String(h.policy.String())
	obj.Name("RawStart").Int(h.rawStart)
	obj.Name("RawEnd").Int(h.rawEnd)
	obj.Name("Start").Int(h.start)
	obj.Name("End").Int(h.end)
	if cursor, ok := h.cursor.Offset(); ok {
		obj.Name("Cursor").Int(cursor)
	} else {
		obj.Name("Cursor").Null()
	}

	obj.Name("TotalBytes").Int(stats.HeapBytes)
	obj.Name("UnusedBytes").Int(stats.FreeBytes())
	obj.Name("Allocations").Int(stats.AllocationCount)
	obj.Name("UnusedRanges").Int(stats.FreeBlockCount)

	blocks := obj.Name("Blocks").Array()
	defer blocks.End()

	_ = h.walker().VisitAllBlocks(func(offset int, size int, free bool) error {
		blockObj := blocks.Object()
		defer blockObj.End()

		status := metadata.StatusAllocated
		if free {
			status = metadata.StatusFree
		}

		blockObj.Name("Offset").Int(offset)
		blockObj.Name("Size").Int(size)
		blockObj.Name("Type").String(status.String())
		if !free {
			blockObj.Name("UsableBytes").Int(metadata.PayloadSize(size))
		}
		return nil
	})
}
