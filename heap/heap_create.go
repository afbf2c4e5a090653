package heap

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/metadata"
	"github.com/vkngwrapper/heapmm/provider"
)

const (
	// DefaultGrowthIncrement is the number of bytes the provider region is extended by when
	// no free block fits a request
	DefaultGrowthIncrement int = 4096
	// DefaultMaxGrowthAttempts bounds how many times a single request may extend the heap
	DefaultMaxGrowthAttempts int = 3
)

// CreateOptions contains optional settings when creating a heap. All fields may be left at
// their zero values.
type CreateOptions struct {
	// Policy selects the fit policy used to search for free blocks. FitFirst is used if
	// none is provided.
	Policy metadata.FitPolicy
	// GrowthIncrement is the number of bytes requested from the provider each time the heap
	// is extended. It must be a power of two no smaller than twice metadata.MinBlockSize.
	// Requests larger than the increment extend the heap by the smallest multiple of the
	// increment that fits them.
	GrowthIncrement int
	// MaxGrowthAttempts is the number of times one allocation may extend the heap before
	// giving up with heapmm.ErrGrowthExhausted
	MaxGrowthAttempts int
	// LogLevel is the initial tracing level, see Heap.SetLogLevel
	LogLevel LogLevel
	// Callbacks is an optional set of callbacks executed on heap growth and on fatal errors
	Callbacks *CallbackOptions
}

// New creates a heap over a pristine provider region. It extends the region by one growth
// increment and lays it out as a single free block between two sentinels.
//
// The provider must not have been grown before and must report a nonzero page size. Those
// failures, and a provider that cannot supply the first increment, are fatal: they are
// returned and passed to the Fatal callback.
//
// logger receives tracing output and warnings. If it is nil, slog.Default() is used.
func New(logger *slog.Logger, p provider.Provider, options CreateOptions) (*Heap, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		return nil, errors.New("a memory provider is required")
	}

	h := &Heap{
		logger:            logger,
		logLevel:          options.LogLevel,
		provider:          p,
		policy:            options.Policy,
		growthIncrement:   options.GrowthIncrement,
		maxGrowthAttempts: options.MaxGrowthAttempts,
	}
	h.callbacks = heapCallbacks{Callbacks: options.Callbacks, Heap: h}

	if h.policy == 0 {
		h.policy = metadata.FitFirst
	}
	if h.growthIncrement == 0 {
		h.growthIncrement = DefaultGrowthIncrement
	}
	if h.maxGrowthAttempts <= 0 {
		h.maxGrowthAttempts = DefaultMaxGrowthAttempts
	}

	h.trace(LogInfo, "init",
		slog.String("policy", h.policy.String()),
		slog.Bool("debugValidation", heapmm.DebugEnabled),
	)

	err := heapmm.CheckPow2(h.growthIncrement, "GrowthIncrement")
	if err != nil {
		return nil, err
	}
	if h.growthIncrement < 2*metadata.MinBlockSize {
		return nil, errors.Wrapf(heapmm.ErrInvalidSize, "GrowthIncrement %d is smaller than %d", h.growthIncrement, 2*metadata.MinBlockSize)
	}

	h.searcher, err = metadata.NewBlockSearcher(h.policy, &h.cursor, h.traceSearch)
	if err != nil {
		return nil, h.fail(err)
	}

	err = h.init()
	if err != nil {
		return nil, err
	}

	heapmm.DebugValidate(h)
	return h, nil
}

func (h *Heap) init() error {
	rawStart, rawEnd := h.provider.Extent()
	pageSize := h.provider.PageSize()

	h.trace(LogVerbose, "provider region",
		slog.Int("rawStart", rawStart),
		slog.Int("rawEnd", rawEnd),
		slog.Int("pageSize", pageSize),
	)

	if rawStart != rawEnd {
		return h.fail(errors.Wrapf(heapmm.ErrHeapNotClean, "region starts at %#x but its break is at %#x", rawStart, rawEnd))
	}
	if pageSize == 0 {
		return h.fail(errors.WithStack(heapmm.ErrZeroPageSize))
	}

	brk, err := h.provider.Grow(h.growthIncrement)
	if err != nil {
		return h.fail(outOfMemory(err, h.growthIncrement))
	}

	h.region = metadata.Region(h.provider.Bytes())
	h.rawStart = rawStart
	h.rawEnd = brk
	h.start = heapmm.AlignUp(rawStart+metadata.WordSize, metadata.MinBlockSize)
	h.end = heapmm.AlignDown(brk-metadata.WordSize, metadata.MinBlockSize)

	if h.end-h.start < metadata.MinBlockSize {
		return h.fail(errors.Wrapf(heapmm.ErrInvalidSize, "region [%#x, %#x) is too small to hold a block", rawStart, brk))
	}

	h.region.SetTag(h.start-metadata.WordSize, metadata.SentinelTag)
	h.region.SetTag(h.end, metadata.SentinelTag)
	h.region.WriteBlock(h.start, h.end-h.start, metadata.StatusFree)

	h.trace(LogVerbose, "heap initialized",
		slog.Int("start", h.start),
		slog.Int("end", h.end),
	)

	return nil
}

// fail records a fatal error, reports it and returns it. Only the first fatal error is kept.
func (h *Heap) fail(err error) error {
	if h.failure != nil {
		return err
	}

	h.failure = err
	h.logger.LogAttrs(context.Background(), slog.LevelError, "PANIC", slog.Any("error", err))
	h.callbacks.Fatal(err)

	return err
}

func outOfMemory(err error, increment int) error {
	err = errors.Wrapf(err, "extending heap by %#x bytes", increment)
	if !errors.Is(err, heapmm.ErrOutOfMemory) {
		err = errors.Mark(err, heapmm.ErrOutOfMemory)
	}

	return err
}
