package detection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/pkg/dedup"
)

const (
	commandDispatched = "dispatched"
	commandHeld       = "held"
	commandFailed     = "failed"
	commandDuplicate  = "duplicate"
)

// Metrics are the pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	detections *prometheus.CounterVec
	review     prometheus.Counter
	commands   *prometheus.CounterVec
	upstream   *prometheus.CounterVec
	duration   prometheus.Histogram

	reg   prometheus.Registerer
	dedup map[string]prometheus.GaugeFunc
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		detections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agrispray_detections_total",
			Help: "Detections processed, by infection level.",
		}, []string{"level"}),
		review: f.NewCounter(prometheus.CounterOpts{
			Name: "agrispray_review_required_total",
			Help: "Detections flagged for human review.",
		}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agrispray_sprayer_commands_total",
			Help: "Sprayer commands by dispatch outcome.",
		}, []string{"outcome"}),
		upstream: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agrispray_upstream_failures_total",
			Help: "Collaborator failures.",
		}, []string{"collaborator"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agrispray_pipeline_duration_seconds",
			Help:    "Time spent in Process.",
			Buckets: prometheus.DefBuckets,
		}),
		reg:   reg,
		dedup: make(map[string]prometheus.GaugeFunc),
	}
}

// WatchDedup exports the size of a deduper. Call it during setup; a cache name is registered once.
func (m *Metrics) WatchDedup(cache string, d *dedup.Deduper) {
	if m == nil || d == nil {
		return
	}
	if _, ok := m.dedup[cache]; ok {
		return
	}
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "agrispray_dedup_entries",
		Help:        "Keys held by a deduplication cache.",
		ConstLabels: prometheus.Labels{"cache": cache},
	}, func() float64 { return float64(d.Len()) })
	if m.reg != nil {
		if err := m.reg.Register(g); err != nil {
			return
		}
	}
	m.dedup[cache] = g
}

func (m *Metrics) observeRecord(rec entities.DetectionRecord, seconds float64) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(rec.InfectionLevel.String()).Inc()
	if rec.ReviewRequired {
		m.review.Inc()
	}
	m.duration.Observe(seconds)
}

func (m *Metrics) command(outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(outcome).Inc()
}

func (m *Metrics) upstreamFailure(collaborator string) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(collaborator).Inc()
}
