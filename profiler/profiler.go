// Package profiler - Operation timing for inference and evaluation loops.
package profiler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	name      string
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
	items     int64
}

// Name returns the operation name.
func (t *TimeTracker) Name() string { return t.name }

// Count returns how many times the operation completed.
func (t *TimeTracker) Count() int64 { return t.count }

// Total returns the summed duration.
func (t *TimeTracker) Total() time.Duration { return t.totalTime }

// Min returns the shortest recorded duration.
func (t *TimeTracker) Min() time.Duration { return t.minTime }

// Max returns the longest recorded duration.
func (t *TimeTracker) Max() time.Duration { return t.maxTime }

// Mean returns the average duration, zero when nothing was recorded.
func (t *TimeTracker) Mean() time.Duration {
	if t.count == 0 {
		return 0
	}
	return t.totalTime / time.Duration(t.count)
}

// Throughput returns processed items per second of recorded time.
func (t *TimeTracker) Throughput() float64 {
	if t.totalTime <= 0 {
		return 0
	}
	return float64(t.items) / t.totalTime.Seconds()
}

// Tracker collects per-operation timings. It is safe for concurrent use.
type Tracker struct {
	mu             sync.Mutex
	operationTimes map[string]*TimeTracker
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{operationTimes: make(map[string]*TimeTracker)}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//   - items: How many items (images, requests) the operation processes.
//
// Returns:
//   - A function to call when the operation completes.
//
// @example
// done := tracker.StartOperation("forward", len(batch))
// err := session.Run()
// done()
func (p *Tracker) StartOperation(name string, items int) func() {
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start), items)
	}
}

// Record adds one completed operation.
func (p *Tracker) Record(name string, duration time.Duration, items int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		p.operationTimes[name] = tracker
	}

	tracker.totalTime += duration
	tracker.count++
	tracker.items += int64(items)

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Get returns a copy of the named tracker.
func (p *Tracker) Get(name string) (TimeTracker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.operationTimes[name]
	if !ok {
		return TimeTracker{name: name}, false
	}
	return *t, true
}

// Log writes one line per operation, sorted by name.
func (p *Tracker) Log(logger *zap.Logger) {
	p.mu.Lock()
	names := make([]string, 0, len(p.operationTimes))
	for name := range p.operationTimes {
		names = append(names, name)
	}
	p.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		t, _ := p.Get(name)
		logger.Debug("operation timing",
			zap.String("operation", name),
			zap.Duration("avg", t.Mean().Truncate(time.Microsecond)),
			zap.Duration("min", t.Min().Truncate(time.Microsecond)),
			zap.Duration("max", t.Max().Truncate(time.Microsecond)),
			zap.Int64("count", t.Count()),
		)
	}
}
