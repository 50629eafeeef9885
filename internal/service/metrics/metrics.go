// Package metrics публикует счетчики снапшотов и распознавания в Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"face-identification/internal/models"
	"face-identification/internal/service/snapshot"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector подписывается на события кэша снапшотов и результаты сравнения
type Collector struct {
	registry *prometheus.Registry

	builds            *prometheus.CounterVec
	invalidations     prometheus.Counter
	entries           prometheus.Gauge
	skipped           prometheus.Gauge
	builtAt           prometheus.Gauge
	matches           *prometheus.CounterVec
	requests          prometheus.Counter
	sourceUnavailable prometheus.Counter
}

// NewCollector создает коллектор со своим registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "face_snapshot_builds_total",
			Help: "Snapshot builds by result",
		}, []string{"result"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "face_snapshot_invalidations_total",
			Help: "Snapshot cache invalidations",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "face_snapshot_entries",
			Help: "Known subjects in the last installed snapshot",
		}),
		skipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "face_snapshot_skipped_records",
			Help: "Records skipped during the last build",
		}),
		builtAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "face_snapshot_built_timestamp_seconds",
			Help: "Build time of the last installed snapshot",
		}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "face_matches_total",
			Help: "Matched faces by status",
		}, []string{"status"}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "face_identify_requests_total",
			Help: "Completed identification requests",
		}),
		sourceUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "face_snapshot_source_unavailable_total",
			Help: "Builds aborted because the subject source was unreachable",
		}),
	}

	c.registry.MustRegister(
		c.builds,
		c.invalidations,
		c.entries,
		c.skipped,
		c.builtAt,
		c.matches,
		c.requests,
		c.sourceUnavailable,
	)
	return c
}

// Handler - endpoint /metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ============ SNAPSHOT EVENTS ============

func (c *Collector) SnapshotBuilt(s *snapshot.Snapshot) {
	c.builds.WithLabelValues("built").Inc()
	c.entries.Set(float64(s.Len()))
	c.skipped.Set(float64(s.Skipped()))
	c.builtAt.Set(float64(s.BuiltAt().Unix()))
}

func (c *Collector) SnapshotInvalidated() {
	c.invalidations.Inc()
}

// SnapshotStale - сборка не удалась, отдается старый снапшот
func (c *Collector) SnapshotStale(key snapshot.Key, err error) {
	c.builds.WithLabelValues("stale").Inc()
	c.countSource(err)
}

// SnapshotFailed - сборка не удалась, старого снапшота нет
func (c *Collector) SnapshotFailed(key snapshot.Key, err error) {
	c.builds.WithLabelValues("failed").Inc()
	c.countSource(err)
}

func (c *Collector) countSource(err error) {
	if errors.Is(err, snapshot.ErrSourceUnavailable) {
		c.sourceUnavailable.Inc()
	}
}

// ============ MATCH EVENTS ============

func (c *Collector) MatchCompleted(requestID string, results []models.MatchResult) {
	c.requests.Inc()
	for _, r := range results {
		c.matches.WithLabelValues(string(r.Status)).Inc()
	}
}
