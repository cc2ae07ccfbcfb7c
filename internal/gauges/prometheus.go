package gauges

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/renku-io/event-log/internal/domain"
)

// Prometheus is the concrete GaugesUpdater wired at startup: one gauge
// vector keyed by (project_slug, status), plus per-category counters for
// delivered events and the registry's pool size.
type Prometheus struct {
	registry *prometheus.Registry

	statusGauge      *prometheus.GaugeVec
	sentEvents       *prometheus.CounterVec
	subscriberCount  *prometheus.GaugeVec
	subscriberCapacity *prometheus.GaugeVec
}

// NewPrometheus builds a Prometheus gauges updater and registers its
// collectors with a fresh registry.
func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()

	p := &Prometheus{
		registry: registry,
		statusGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "eventlog",
				Subsystem: "events",
				Name:      "by_status",
				Help:      "Current number of events per project and status.",
			},
			[]string{"project_slug", "status"},
		),
		sentEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventlog",
				Subsystem: "sender",
				Name:      "sent_events_total",
				Help:      "Total number of events successfully delivered to a subscriber.",
			},
			[]string{"category"},
		),
		subscriberCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "eventlog",
				Subsystem: "registry",
				Name:      "subscriber_count",
				Help:      "Current number of registered subscribers per category.",
			},
			[]string{"category"},
		),
		subscriberCapacity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "eventlog",
				Subsystem: "registry",
				Name:      "subscriber_total_capacity",
				Help:      "Sum of declared subscriber capacity per category (absent when no subscriber declares one).",
			},
			[]string{"category"},
		),
	}

	registry.MustRegister(
		p.statusGauge,
		p.sentEvents,
		p.subscriberCount,
		p.subscriberCapacity,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return p
}

// Registry returns the Prometheus registry backing this updater, for
// wiring into promhttp.HandlerFor.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) UpdateGauges(results domain.DBUpdateResults) {
	for slug, deltas := range results.Projects {
		for _, d := range deltas {
			p.statusGauge.WithLabelValues(slug, string(d.Status)).Add(float64(d.Delta))
		}
	}
}

func (p *Prometheus) RecordSent(category domain.Category) {
	p.sentEvents.WithLabelValues(string(category)).Inc()
}

func (p *Prometheus) RecordSubscriberPool(category domain.Category, subscriberCount int, totalCapacity *int) {
	p.subscriberCount.WithLabelValues(string(category)).Set(float64(subscriberCount))
	if totalCapacity != nil {
		p.subscriberCapacity.WithLabelValues(string(category)).Set(float64(*totalCapacity))
	} else {
		p.subscriberCapacity.DeleteLabelValues(string(category))
	}
}

var _ GaugesUpdater = (*Prometheus)(nil)
