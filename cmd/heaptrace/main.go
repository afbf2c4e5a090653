package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/heapmm"
	"github.com/vkngwrapper/heapmm/heap"
	"github.com/vkngwrapper/heapmm/internal/trace"
	"github.com/vkngwrapper/heapmm/metadata"
	"github.com/vkngwrapper/heapmm/provider"
)

func main() {
	var (
		in        string
		policy    string
		backing   string
		limit     int
		increment int
		logLevel  int
		dumpMap   bool
		check     bool
	)
	flag.StringVar(&in, "in", "", "trace file to replay (- for stdin)")
	flag.StringVar(&policy, "policy", "first", "fit policy (first|next|best)")
	flag.StringVar(&backing, "provider", "slice", "memory provider (slice|mmap)")
	flag.IntVar(&limit, "limit", 64<<20, "maximum size of the provider region in bytes")
	flag.IntVar(&increment, "increment", heap.DefaultGrowthIncrement, "heap growth increment in bytes")
	flag.IntVar(&logLevel, "v", 0, "log level (0: off; 1: info; 2: verbose)")
	flag.BoolVar(&dumpMap, "map", false, "print a JSON map of every block after the replay")
	flag.BoolVar(&check, "check", false, "print the heap consistency dump after the replay")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if in == "" {
		fatal(logger, "-in is required")
	}

	fitPolicy, err := metadata.ParseFitPolicy(policy)
	if err != nil {
		fatal(logger, "invalid policy", slog.Any("error", err))
	}

	ops, err := readTrace(in)
	if err != nil {
		fatal(logger, "failed to read trace", slog.Any("error", err))
	}

	region, closeRegion, err := openProvider(backing, limit)
	if err != nil {
		fatal(logger, "failed to create provider", slog.Any("error", err))
	}
	defer closeRegion()

	h, err := heap.New(logger, region, heap.CreateOptions{
		Policy:          fitPolicy,
		GrowthIncrement: increment,
		LogLevel:        heap.LogLevel(logLevel),
		Callbacks: &heap.CallbackOptions{
			Fatal: func(h *heap.Heap, err error, userData interface{}) {
				closeRegion()
				fatal(logger, "heap failure", slog.Any("error", err))
			},
		},
	})
	if err != nil {
		fatal(logger, "failed to create heap", slog.Any("error", err))
	}

	replayer := trace.NewReplayer(h)
	replayer.CheckOutput = os.Stdout

	result, err := replayer.Run(ops)
	if err != nil {
		logger.Error("replay failed", slog.Any("error", err), slog.Bool("fatal", heapmm.IsFatal(err)))
		h.Check(os.Stdout)
		closeRegion()
		os.Exit(1)
	}

	writer := jwriter.NewWriter()
	result.WriteJSON(&writer)
	fmt.Println(string(writer.Bytes()))

	if dumpMap {
		mapWriter := jwriter.NewWriter()
		h.PrintDetailedMap(&mapWriter)
		fmt.Println(string(mapWriter.Bytes()))
	}

	if check {
		report := h.Check(os.Stdout)
		if !report.Coherent() {
			closeRegion()
			os.Exit(1)
		}
	}
}

func readTrace(path string) ([]trace.Op, error) {
	if path == "-" {
		return trace.Parse(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return trace.Parse(file)
}

func openProvider(kind string, limit int) (provider.Provider, func(), error) {
	switch kind {
	case "slice":
		p, err := provider.NewSliceProvider(limit)
		return p, func() {}, err
	case "mmap":
		p, err := provider.NewMmapProvider(limit)
		if err != nil {
			return nil, func() {}, err
		}
		return p, func() { _ = p.Close() }, nil
	}

	return nil, func() {}, errors.Newf("unknown provider %q", kind)
}

func fatal(logger *slog.Logger, msg string, attrs ...any) {
	logger.Error(msg, attrs...)
	os.Exit(1)
}
