package observability

import (
	"log/slog"
	"sync/atomic"
)

// SampledWarner rate-gates structured warnings: the first warning of each
// window of n occurrences is logged, the rest only counted. Used on hot
// invariant-violation paths where every occurrence also increments a
// counter.
type SampledWarner struct {
	logger *slog.Logger
	every  uint64
	seen   atomic.Uint64
}

// NewSampledWarner logs one warning out of every `every` calls. every <= 1
// logs all of them.
func NewSampledWarner(logger *slog.Logger, every uint64) *SampledWarner {
	if logger == nil {
		logger = slog.Default()
	}
	if every == 0 {
		every = 1
	}
	return &SampledWarner{logger: logger, every: every}
}

// Warn logs msg with args when the sample gate opens.
func (w *SampledWarner) Warn(msg string, args ...any) {
	n := w.seen.Add(1)
	if (n-1)%w.every == 0 {
		w.logger.Warn(msg, args...)
	}
}
