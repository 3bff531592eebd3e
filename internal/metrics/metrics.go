// Package metrics exposes operational counters and latency histograms
// in Prometheus's text exposition format. No example repo in the pack
// imports a metrics client library, so this is a small stdlib registry
// (sync.Mutex-guarded maps) rather than an adopted dependency.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry collects named counters and histograms, safe for concurrent
// use across every queue worker and HTTP handler in the process.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string]*histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	total   uint64
}

// DefaultBuckets mirrors the latency ranges a Telegram webhook or queue
// task typically falls into: sub-10ms in-process work up to multi-second
// external calls.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]float64),
		histograms: make(map[string]*histogram),
	}
}

// Inc increments a named counter by one. Labels, if any, are baked into
// the name as "name{k=v,...}" to keep the registry a flat map.
func (r *Registry) Inc(name string, labels ...string) {
	r.Add(name, 1, labels...)
}

func (r *Registry) Add(name string, delta float64, labels ...string) {
	key := withLabels(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key] += delta
}

// Observe records a duration into a named histogram.
func (r *Registry) Observe(name string, d time.Duration, labels ...string) {
	key := withLabels(name, labels)
	seconds := d.Seconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histograms[key]
	if !ok {
		h = &histogram{buckets: DefaultBuckets, counts: make([]uint64, len(DefaultBuckets)+1)}
		r.histograms[key] = h
	}
	h.sum += seconds
	h.total++
	for i, upper := range h.buckets {
		if seconds <= upper {
			h.counts[i]++
		}
	}
	h.counts[len(h.buckets)]++
}

// Timer returns a func that records the elapsed time since call when
// invoked, meant to be deferred at the top of a handler or task body.
func (r *Registry) Timer(name string, labels ...string) func() {
	start := time.Now()
	return func() {
		r.Observe(name, time.Since(start), labels...)
	}
}

// WriteText renders the registry in Prometheus text exposition format.
func (r *Registry) WriteText() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	counterNames := make([]string, 0, len(r.counters))
	for k := range r.counters {
		counterNames = append(counterNames, k)
	}
	sort.Strings(counterNames)
	for _, k := range counterNames {
		fmt.Fprintf(&b, "%s %g\n", k, r.counters[k])
	}

	histNames := make([]string, 0, len(r.histograms))
	for k := range r.histograms {
		histNames = append(histNames, k)
	}
	sort.Strings(histNames)
	for _, k := range histNames {
		h := r.histograms[k]
		for i, upper := range h.buckets {
			fmt.Fprintf(&b, "%s_bucket{le=\"%g\"} %d\n", k, upper, h.counts[i])
		}
		fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", k, h.counts[len(h.buckets)])
		fmt.Fprintf(&b, "%s_sum %g\n", k, h.sum)
		fmt.Fprintf(&b, "%s_count %d\n", k, h.total)
	}
	return b.String()
}

func withLabels(name string, labels []string) string {
	if len(labels) == 0 {
		return name
	}
	pairs := make([]string, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%s=%q", labels[i], labels[i+1]))
	}
	return fmt.Sprintf("%s{%s}", name, strings.Join(pairs, ","))
}
