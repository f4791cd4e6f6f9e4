package main

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-segscan/inference"
	"github.com/nvr-ai/go-segscan/profiler"
	"github.com/nvr-ai/go-segscan/scheduler"
	"github.com/nvr-ai/go-segscan/source"
	"github.com/nvr-ai/go-segscan/telemetry"
)

// newProfiler registers a collector for every pipeline stage that keeps
// counters. mqttSink may be nil.
func newProfiler(
	interval time.Duration,
	boundary *inference.Async,
	sched *scheduler.Scheduler,
	live source.Live,
	mqttSink *telemetry.MQTTSink,
	logger logrus.FieldLogger,
) *profiler.Profiler {
	prof := profiler.New(profiler.Options{Interval: interval, Logger: logger})

	prof.Register("boundary", profiler.CollectorFunc(func() map[string]float64 {
		st := boundary.Stats()
		return map[string]float64{
			"submitted":       float64(st.Submitted),
			"completed":       float64(st.Completed),
			"failed":          float64(st.Failed),
			"max_outstanding": float64(st.MaxOutstanding),
			"latency_ms":      float64(st.LastLatency) / float64(time.Millisecond),
		}
	}))
	prof.Register("scan", profiler.CollectorFunc(func() map[string]float64 {
		snap := sched.Snapshot()
		return map[string]float64{
			"submissions": float64(snap.Counters.Submissions),
			"completions": float64(snap.Counters.Completions),
			"stale":       float64(snap.Counters.Stale),
			"failures":    float64(snap.Counters.Failures),
			"samples":     float64(len(snap.Samples)),
		}
	}))
	if capture, ok := live.(*source.Capture); ok {
		prof.Register("camera", profiler.CollectorFunc(func() map[string]float64 {
			st := capture.Stats()
			return map[string]float64{
				"stored":  float64(st.Stored),
				"dropped": float64(st.Dropped),
			}
		}))
	}
	if mqttSink != nil {
		prof.Register("mqtt", profiler.CollectorFunc(func() map[string]float64 {
			published, failed := mqttSink.Stats()
			return map[string]float64{
				"published": float64(published),
				"failed":    float64(failed),
			}
		}))
	}
	return prof
}
