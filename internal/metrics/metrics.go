// Package metrics exposes dedupe engine measurements to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qero/api/internal/dedupe"
)

const namespace = "qero"

// Recorder implements dedupe.Recorder on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	previews        prometheus.Counter
	previewGroups   prometheus.Gauge
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	archived        prometheus.Counter
	deleted         prometheus.Counter
	skipped         prometheus.Counter
	fieldsMerged    prometheus.Counter
	relationRows    *prometheus.CounterVec
	runErrors       *prometheus.CounterVec
	restores        *prometheus.CounterVec
	importDecisions *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		previews: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedupe", Name: "previews_total",
			Help: "Dedupe previews computed.",
		}),
		previewGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "dedupe", Name: "preview_groups",
			Help: "Duplicate groups found by the latest preview.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedupe", Name: "runs_total",
			Help: "Dedupe apply runs by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "dedupe", Name: "run_duration_seconds",
			Help:    "Wall time of dedupe apply runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedupe", Name: "archived_contacts_total",
			Help: "Contacts archived before merge.",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedupe", Name: "deleted_contacts_total",
			Help: "Duplicate contacts deleted after merge.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedupe", Name: "skipped_contacts_total",
			Help: "Duplicates skipped because they or their primary vanished.",
		}),
		fieldsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedupe", Name: "fields_merged_total",
			Help: "Contact fields filled from duplicates.",
		}),
		relationRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedupe", Name: "relation_rows_merged_total",
			Help: "Dependent rows moved to a primary, by relation table.",
		}, []string{"relation"}),
		runErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedupe", Name: "run_errors_total",
			Help: "Per-record failures during apply runs, by step.",
		}, []string{"step"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedupe", Name: "restores_total",
			Help: "Archive restores by outcome.",
		}, []string{"outcome"}),
		importDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "import", Name: "rows_total",
			Help: "Imported rows by decision.",
		}, []string{"decision"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.previews, r.previewGroups, r.runs, r.runDuration,
		r.archived, r.deleted, r.skipped, r.fieldsMerged,
		r.relationRows, r.runErrors, r.restores, r.importDecisions,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) RecordPreview(preview dedupe.Preview) {
	r.previews.Inc()
	r.previewGroups.Set(float64(preview.GroupCount))
}

func (r *Recorder) RecordRun(summary dedupe.Summary, elapsed time.Duration) {
	r.runs.WithLabelValues(string(summary.Status)).Inc()
	r.runDuration.Observe(elapsed.Seconds())
	r.archived.Add(float64(summary.ArchivedCount))
	r.deleted.Add(float64(summary.DeletedCount))
	r.skipped.Add(float64(summary.SkippedCount))
	r.fieldsMerged.Add(float64(summary.FieldsMergedCount))
	for relation, count := range summary.MergedByRelationType {
		r.relationRows.WithLabelValues(relation).Add(float64(count))
	}
	for _, runErr := range summary.Errors {
		r.runErrors.WithLabelValues(string(runErr.Step)).Inc()
	}
}

func (r *Recorder) RecordRestore(err error) {
	r.restores.WithLabelValues(restoreOutcome(err)).Inc()
}

func (r *Recorder) RecordImport(result dedupe.ImportResult) {
	r.importDecisions.WithLabelValues("imported").Add(float64(result.Imported))
	r.importDecisions.WithLabelValues("duplicate").Add(float64(result.Duplicates))
	r.importDecisions.WithLabelValues("failed").Add(float64(result.Failed))
}

func restoreOutcome(err error) string {
	switch {
	case err == nil:
		return "restored"
	case errors.Is(err, dedupe.ErrConflict):
		return "conflict"
	case errors.Is(err, dedupe.ErrNotFound):
		return "not_found"
	case errors.Is(err, dedupe.ErrValidation):
		return "invalid"
	default:
		return "failed"
	}
}
