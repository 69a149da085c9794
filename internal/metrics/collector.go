// Package metrics is a small Prometheus-compatible metrics collector.
// It renders the text exposition format directly instead of pulling in
// prometheus/client_golang.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default is the process-wide collector.
var Default = NewCollector("voicepolish")

// Collector aggregates counters, gauges and histograms.
type Collector struct {
	namespace string
	startTime time.Time

	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewCollector creates a collector whose uptime gauge is prefixed with namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		namespace:  namespace,
		startTime:  time.Now(),
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

// Uptime returns how long the collector has been running.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

type series struct {
	name   string
	help   string
	labels string
}

func (s series) ident() string {
	if s.labels == "" {
		return s.name
	}
	return s.name + "{" + s.labels + "}"
}

// Counter is a monotonically increasing counter.
type Counter struct {
	series
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	series
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	series
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// ObserveSince records the seconds elapsed since start.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Counter returns or creates the counter identified by name and labels.
// labels is in exposition form, e.g. `stage="download"`.
func (c *Collector) Counter(name, help, labels string) *Counter {
	s := series{name: name, help: help, labels: labels}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.counters[s.ident()]; ok {
		return ctr
	}
	ctr := &Counter{series: s}
	c.counters[s.ident()] = ctr
	return ctr
}

// Gauge returns or creates the gauge identified by name and labels.
func (c *Collector) Gauge(name, help, labels string) *Gauge {
	s := series{name: name, help: help, labels: labels}
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gauges[s.ident()]; ok {
		return g
	}
	g := &Gauge{series: s}
	c.gauges[s.ident()] = g
	return g
}

// Histogram returns or creates the histogram identified by name and labels.
func (c *Collector) Histogram(name, help, labels string, bounds []float64) *Histogram {
	s := series{name: name, help: help, labels: labels}
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.histograms[s.ident()]; ok {
		return h
	}
	// +Inf is always rendered from the total count.
	sorted := make([]float64, 0, len(bounds))
	for _, b := range bounds {
		if !math.IsInf(b, 1) {
			sorted = append(sorted, b)
		}
	}
	sort.Float64s(sorted)
	h := &Histogram{series: s, bounds: sorted, buckets: make([]int64, len(sorted))}
	c.histograms[s.ident()] = h
	return h
}

// Handler renders all metrics in Prometheus text format.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.WriteTo(w)
	}
}

// WriteTo writes the exposition text to w. Series are sorted so output is stable.
func (c *Collector) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	uptime := c.namespace + "_uptime_seconds"
	fmt.Fprintf(&sb, "# HELP %s Time since start in seconds\n", uptime)
	fmt.Fprintf(&sb, "# TYPE %s gauge\n", uptime)
	fmt.Fprintf(&sb, "%s %d\n", uptime, int64(c.Uptime().Seconds()))

	c.mu.RLock()
	counters := sortedValues(c.counters)
	gauges := sortedValues(c.gauges)
	histograms := sortedValues(c.histograms)
	c.mu.RUnlock()

	written := make(map[string]bool)
	header := func(s series, kind string) {
		if written[s.name] {
			return
		}
		written[s.name] = true
		fmt.Fprintf(&sb, "# HELP %s %s\n", s.name, s.help)
		fmt.Fprintf(&sb, "# TYPE %s %s\n", s.name, kind)
	}

	for _, ctr := range counters {
		header(ctr.series, "counter")
		fmt.Fprintf(&sb, "%s %d\n", ctr.ident(), ctr.Value())
	}
	for _, g := range gauges {
		header(g.series, "gauge")
		fmt.Fprintf(&sb, "%s %d\n", g.ident(), g.Value())
	}
	for _, h := range histograms {
		header(h.series, "histogram")
		h.mu.Lock()
		sep := ""
		if h.labels != "" {
			sep = h.labels + ","
		}
		for i, le := range h.bounds {
			fmt.Fprintf(&sb, "%s_bucket{%sle=\"%g\"} %d\n", h.name, sep, le, h.buckets[i])
		}
		fmt.Fprintf(&sb, "%s_bucket{%sle=\"+Inf\"} %d\n", h.name, sep, h.count)
		suffix := ""
		if h.labels != "" {
			suffix = "{" + h.labels + "}"
		}
		fmt.Fprintf(&sb, "%s_sum%s %g\n", h.name, suffix, h.sum)
		fmt.Fprintf(&sb, "%s_count%s %d\n", h.name, suffix, h.count)
		h.mu.Unlock()
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func sortedValues[T any](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Series recorded by the voice pipeline.
var (
	VoiceMessagesTotal = Default.Counter("voicepolish_voice_messages_total", "Voice messages received", "")
	PipelineDone       = Default.Counter("voicepolish_pipeline_runs_total", "Finished pipeline runs by outcome", `outcome="done"`)
	PipelineFailed     = Default.Counter("voicepolish_pipeline_runs_total", "Finished pipeline runs by outcome", `outcome="failed"`)
	EmptyTranscripts   = Default.Counter("voicepolish_empty_transcripts_total", "Voice messages with no recognizable speech", "")
	PipelineInFlight   = Default.Gauge("voicepolish_pipeline_in_flight", "Pipeline runs currently in progress", "")
)

var stageBuckets = []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// StageLatency returns the latency histogram for one pipeline stage.
func StageLatency(stage string) *Histogram {
	return Default.Histogram("voicepolish_stage_latency_seconds", "Pipeline stage latency in seconds",
		fmt.Sprintf("stage=%q", stage), stageBuckets)
}
