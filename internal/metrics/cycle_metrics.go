// Package metrics exposes collector self-metrics in the Prometheus text
// format, written to a node_exporter textfile after each cycle.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rcourtman/pulse-disk-collector/internal/cycle"
)

// Recorder holds the collector metrics on a private registry. Each run is
// one process, so every metric describes the most recent cycle only.
type Recorder struct {
	registry *prometheus.Registry

	// LastCycleOutcome is 1 for the outcome of the most recent cycle and 0
	// for the others.
	LastCycleOutcome *prometheus.GaugeVec
	FailedSources    prometheus.Gauge
	SourceFailures   *prometheus.GaugeVec
	WriteFailed      prometheus.Gauge
	MirrorFailed     *prometheus.GaugeVec

	CycleDurationSeconds prometheus.Gauge
	DisksEnumerated      prometheus.Gauge
	LastSuccessTimestamp prometheus.Gauge
}

var outcomes = []cycle.Outcome{cycle.OutcomeDone, cycle.OutcomePartial, cycle.OutcomeAborted}

// NewRecorder registers the collector metrics.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		LastCycleOutcome: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pdc_last_cycle_outcome",
				Help: "1 for the outcome (done, partial, aborted) of the most recent cycle",
			},
			[]string{"outcome"},
		),
		FailedSources: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdc_last_cycle_failed_sources",
				Help: "Sources that failed during the most recent cycle",
			},
		),
		SourceFailures: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pdc_last_cycle_source_failures",
				Help: "Failed sources of the most recent cycle by source and error type",
			},
			[]string{"source", "type"},
		),
		WriteFailed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdc_last_cycle_write_failed",
				Help: "1 when the most recent row could not be written to the collection log",
			},
		),
		MirrorFailed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pdc_last_cycle_mirror_failed",
				Help: "1 when the most recent row was not delivered to a mirror (sqlite, api)",
			},
			[]string{"mirror"},
		),
		CycleDurationSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdc_cycle_duration_seconds",
				Help: "Wall time of the most recent cycle",
			},
		),
		DisksEnumerated: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdc_disks_enumerated",
				Help: "Disks found at the start of the most recent cycle",
			},
		),
		LastSuccessTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdc_last_success_timestamp_seconds",
				Help: "Unix time of the last cycle whose row was written",
			},
		),
	}
}

// RecordCycle replaces the per-cycle metrics with those of res.
func (r *Recorder) RecordCycle(res cycle.Result) {
	current := res.Outcome()
	for _, o := range outcomes {
		v := 0.0
		if o == current {
			v = 1
		}
		r.LastCycleOutcome.WithLabelValues(string(o)).Set(v)
	}
	r.CycleDurationSeconds.Set(res.Duration().Seconds())
	r.DisksEnumerated.Set(float64(len(res.Disks)))
	r.FailedSources.Set(float64(len(res.Failures)))

	r.SourceFailures.Reset()
	for _, f := range res.Failures {
		r.SourceFailures.WithLabelValues(f.Source, string(f.Type)).Inc()
	}
	r.WriteFailed.Set(0)
	r.MirrorFailed.Reset()
}

// RecordWritten marks the cycle's row as durably appended.
func (r *Recorder) RecordWritten(res cycle.Result) {
	r.WriteFailed.Set(0)
	r.LastSuccessTimestamp.Set(float64(res.Finished.Unix()))
}

// RecordWriteFailure flags a lost row.
func (r *Recorder) RecordWriteFailure() {
	r.WriteFailed.Set(1)
}

// RecordMirrorFailure flags a failed sqlite or api delivery.
func (r *Recorder) RecordMirrorFailure(mirror string) {
	r.MirrorFailed.WithLabelValues(mirror).Set(1)
}

// Gatherer exposes the registry, e.g. for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.registry }

// WriteTextfile atomically replaces path with the current metrics.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
