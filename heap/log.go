package heap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vkngwrapper/heapmm/metadata"
)

// LogLevel controls how much of the heap's activity is traced to its logger. Warnings and
// fatal errors are always logged.
type LogLevel int

const (
	// LogOff disables tracing
	LogOff LogLevel = iota
	// LogInfo logs one line per public operation at slog.LevelInfo
	LogInfo
	// LogVerbose additionally logs searches, splits, coalescing and growth at slog.LevelDebug
	LogVerbose
)

var logLevelMapping = map[LogLevel]string{
	LogOff:     "LogOff",
	LogInfo:    "LogInfo",
	LogVerbose: "LogVerbose",
}

func (l LogLevel) String() string {
	str, ok := logLevelMapping[l]
	if !ok {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return str
}

func (h *Heap) SetLogLevel(level LogLevel) {
	h.logLevel = level
}

func (h *Heap) LogLevel() LogLevel {
	return h.logLevel
}

func (h *Heap) trace(level LogLevel, msg string, attrs ...slog.Attr) {
	if level == LogOff || level > h.logLevel {
		return
	}

	slogLevel := slog.LevelInfo
	if level >= LogVerbose {
		slogLevel = slog.LevelDebug
	}

	h.logger.LogAttrs(context.Background(), slogLevel, msg, attrs...)
}

func (h *Heap) traceSearch(block int, tag metadata.Tag) {
	if h.logLevel < LogVerbose {
		return
	}

	h.trace(LogVerbose, "    inspecting block",
		slog.Int("offset", block),
		slog.Int("size", tag.Size()),
		slog.String("status", tag.Status().String()),
	)
}

func (h *Heap) warn(msg string, attrs ...slog.Attr) {
	h.logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
}
