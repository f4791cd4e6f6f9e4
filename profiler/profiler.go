// Package profiler - Periodic pipeline and runtime status reports.
package profiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MetricsCollector supplies named values for each report.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// CollectorFunc adapts a function to the MetricsCollector interface.
type CollectorFunc func() map[string]float64

// CollectMetrics calls f.
func (f CollectorFunc) CollectMetrics() map[string]float64 { return f() }

// Options configures a Profiler.
type Options struct {
	// Interval between reports (default: 10s).
	Interval time.Duration
	Logger   logrus.FieldLogger
}

// Profiler logs runtime memory statistics together with the metrics of every
// registered collector, once per interval.
type Profiler struct {
	interval time.Duration
	logger   logrus.FieldLogger

	mu         sync.Mutex
	collectors map[string]MetricsCollector
	started    time.Time
	lastGC     uint32
	timings    map[string]*timing
}

type timing struct {
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// New creates a profiler. Nothing is reported until Run is called.
func New(opts Options) *Profiler {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Profiler{
		interval:   opts.Interval,
		logger:     opts.Logger.WithField("component", "profiler"),
		collectors: make(map[string]MetricsCollector),
		started:    time.Now(),
		timings:    make(map[string]*timing),
	}
}

// Register adds a collector whose metrics are reported with the given prefix.
// Registering the same prefix again replaces the collector.
func (p *Profiler) Register(prefix string, c MetricsCollector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collectors[prefix] = c
}

// StartOperation starts timing a named operation.
//
// Arguments:
//   - name: The operation name.
//
// Returns:
//   - func(): Call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	began := time.Now()
	return func() {
		p.RecordDuration(name, time.Since(began))
	}
}

// RecordDuration adds one observation to a named timing.
func (p *Profiler) RecordDuration(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.timings[name]
	if !ok {
		t = &timing{min: d, max: d}
		p.timings[name] = t
	}
	t.count++
	t.total += d
	if d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
}

// Run reports every interval until ctx is done.
func (p *Profiler) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Report()
		}
	}
}

// Report logs one status report.
func (p *Profiler) Report() {
	fields := p.Snapshot()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entry := p.logger.WithField("uptime", time.Since(p.started).Truncate(time.Second))
	for _, k := range keys {
		entry = entry.WithField(k, fields[k])
	}
	entry.Info("status report")
}

// Snapshot gathers the current values of every metric, keyed by
// "prefix.name". Runtime values use the "runtime" prefix and operation
// timings the "op" prefix.
func (p *Profiler) Snapshot() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.mu.Lock()
	defer p.mu.Unlock()

	out := map[string]interface{}{
		"runtime.goroutines": runtime.NumGoroutine(),
		"runtime.cgo_calls":  runtime.NumCgoCall(),
		"runtime.heap_alloc": formatBytes(mem.HeapAlloc),
		"runtime.sys":        formatBytes(mem.Sys),
		"runtime.gc_cycles":  mem.NumGC,
		"runtime.gc_new":     mem.NumGC - p.lastGC,
	}
	p.lastGC = mem.NumGC

	for prefix, c := range p.collectors {
		for name, v := range c.CollectMetrics() {
			out[prefix+"."+name] = v
		}
	}
	for name, t := range p.timings {
		if t.count == 0 {
			continue
		}
		out["op."+name] = fmt.Sprintf("avg=%v min=%v max=%v n=%d",
			(t.total / time.Duration(t.count)).Truncate(time.Microsecond),
			t.min.Truncate(time.Microsecond),
			t.max.Truncate(time.Microsecond),
			t.count)
	}
	return out
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
