// Package observability provides the metrics and logging plumbing of the
// natal core: a small MetricsSink contract with the pipe-delimited label
// syntax used across the system, an in-memory sink for tests, and an
// OpenTelemetry-backed sink for production.
package observability

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Label is one metric dimension.
type Label struct {
	Key   string
	Value string
}

// L is shorthand for building a Label.
func L(key, value string) Label { return Label{Key: key, Value: value} }

// MetricsSink receives counter increments and duration observations.
// Implementations must be safe for concurrent use.
type MetricsSink interface {
	IncrCounter(name string, delta int64, labels ...Label)
	ObserveDuration(name string, ms float64, labels ...Label)
}

// Series renders the canonical series key "name|k=v|k=v" with label keys
// sorted, so that series identity is stable regardless of call-site order.
func Series(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}
	sorted := make([]Label, len(labels))
	copy(sorted, labels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	b.WriteString(name)
	for _, l := range sorted {
		fmt.Fprintf(&b, "|%s=%s", l.Key, l.Value)
	}
	return b.String()
}

// MemorySink accumulates metrics in memory. Used by tests and local
// introspection.
type MemorySink struct {
	mu        sync.Mutex
	counters  map[string]int64
	durations map[string][]float64
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		counters:  make(map[string]int64),
		durations: make(map[string][]float64),
	}
}

func (s *MemorySink) IncrCounter(name string, delta int64, labels ...Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[Series(name, labels)] += delta
}

func (s *MemorySink) ObserveDuration(name string, ms float64, labels ...Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Series(name, labels)
	s.durations[key] = append(s.durations[key], ms)
}

// Counter returns the accumulated value for a rendered series key.
func (s *MemorySink) Counter(series string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[series]
}

// Durations returns the recorded observations for a rendered series key.
func (s *MemorySink) Durations(series string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.durations[series]))
	copy(out, s.durations[series])
	return out
}

// CounterSeries returns all counter series keys, sorted.
func (s *MemorySink) CounterSeries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.counters))
	for k := range s.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) IncrCounter(string, int64, ...Label)       {}
func (NopSink) ObserveDuration(string, float64, ...Label) {}

// OrNop returns sink, or a NopSink when sink is nil, so call sites never
// need a nil check.
func OrNop(sink MetricsSink) MetricsSink {
	if sink == nil {
		return NopSink{}
	}
	return sink
}
