// Package metrics defines the Prometheus instruments for a digest run.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics groups all Prometheus instruments used by a run.
type Metrics struct {
	Items         *prometheus.CounterVec
	Content       *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	LastRun       prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers all instruments with a fresh private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytdigest_items_total",
			Help: "Items that reached each terminal pipeline state.",
		}, []string{"state"}),

		Content: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytdigest_content_total",
			Help: "Content acquired, by kind.",
		}, []string{"kind"}),

		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ytdigest_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 180, 600},
		}, []string{"stage"}),

		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ytdigest_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		gatherer: reg,
	}

	reg.MustRegister(m.Items, m.Content, m.StageDuration, m.LastRun)
	return m
}

// Gatherer exposes the private registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// ObserveState counts an item reaching a terminal state.
func (m *Metrics) ObserveState(state string) {
	m.Items.WithLabelValues(state).Inc()
}

// ObserveContent counts acquired content of the given kind.
func (m *Metrics) ObserveContent(kind string) {
	m.Content.WithLabelValues(kind).Inc()
}

// ObserveStage records the duration of one stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// MarkRun records the end of a run.
func (m *Metrics) MarkRun(t time.Time) {
	m.LastRun.Set(float64(t.Unix()))
}

// Push sends every instrument to a Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).
		Gatherer(m.gatherer).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("metrics: push: %w", err)
	}
	return nil
}
