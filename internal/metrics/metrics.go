// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the prometheus collectors of one masking engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smo-cookie/detect-and-match2/internal/detector"
)

// Pass outcomes
const (
	OutcomeMasked = "masked"
	OutcomeDryRun = "dry_run"
	OutcomeFailed = "failed"
)

// Registry holds all metrics of an engine. Each engine owns its registry so
// tests and concurrent engines never share counters.
type Registry struct {
	PassesTotal           *prometheus.CounterVec
	PassDuration          prometheus.Histogram
	FindingsTotal         *prometheus.CounterVec
	LiteralsPerPass       prometheus.Histogram
	ReplacementsTotal     prometheus.Counter
	DetectorAttemptsTotal *prometheus.CounterVec
	StoreWritesTotal      *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewRegistry creates a registry with every collector registered
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	factory := promauto.With(r.registry)

	r.PassesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docmask_passes_total",
			Help: "Total number of masking passes by outcome",
		},
		[]string{"outcome", "kind"},
	)

	r.PassDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docmask_pass_duration_seconds",
			Help:    "Duration of a masking pass in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 180},
		},
	)

	r.FindingsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docmask_findings_total",
			Help: "Distinct detected literals by category",
		},
		[]string{"category"},
	)

	r.LiteralsPerPass = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docmask_mask_set_size",
			Help:    "Number of literals in the mask set of a pass",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	r.ReplacementsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docmask_replacements_total",
			Help: "Total number of literal occurrences replaced",
		},
	)

	r.DetectorAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docmask_detector_attempts_total",
			Help: "Detector calls by detector and status",
		},
		[]string{"detector", "status"},
	)

	r.StoreWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docmask_store_writes_total",
			Help: "Detection report writes by backend and status",
		},
		[]string{"backend", "status"},
	)

	return r
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// RecordPass records the outcome and duration of a pass
func (r *Registry) RecordPass(outcome, kind string, duration time.Duration) {
	r.PassesTotal.WithLabelValues(outcome, kind).Inc()
	r.PassDuration.Observe(duration.Seconds())
}

// RecordFindings counts merged findings per category and the mask set size
func (r *Registry) RecordFindings(merged detector.Result, maskSetSize int) {
	for category, literals := range merged {
		r.FindingsTotal.WithLabelValues(category).Add(float64(len(literals)))
	}
	r.LiteralsPerPass.Observe(float64(maskSetSize))
}

// RecordReplacements adds rewritten occurrences
func (r *Registry) RecordReplacements(n int) {
	r.ReplacementsTotal.Add(float64(n))
}

// RecordDetectorAttempt counts one detector call
func (r *Registry) RecordDetectorAttempt(detectorName string, ok bool) {
	r.DetectorAttemptsTotal.WithLabelValues(detectorName, status(ok)).Inc()
}

// RecordStoreWrite counts one report write
func (r *Registry) RecordStoreWrite(backend string, ok bool) {
	r.StoreWritesTotal.WithLabelValues(backend, status(ok)).Inc()
}

// GetPrometheusRegistry returns the underlying prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// WriteToTextfile writes all metrics in the text exposition format
func (r *Registry) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
