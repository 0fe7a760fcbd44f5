// Package metrics holds the Prometheus collectors of gokino.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles the collectors and the registry they are registered with
type Metrics struct {
	Registry *prometheus.Registry

	ScrapeRuns     *prometheus.CounterVec   // cinema, status
	ScrapeDuration *prometheus.HistogramVec // cinema
	Showings       *prometheus.CounterVec   // cinema, outcome

	Exports           *prometheus.CounterVec // status
	ExportedShowTimes prometheus.Gauge

	Removed *prometheus.CounterVec // entity

	SyncPolls *prometheus.CounterVec // outcome
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ScrapeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gokino",
			Name:      "scrape_runs_total",
			Help:      "Source runs by cinema and final status.",
		}, []string{"cinema", "status"}),
		ScrapeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gokino",
			Name:      "scrape_duration_seconds",
			Help:      "Duration of source runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"cinema"}),
		Showings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gokino",
			Name:      "showings_total",
			Help:      "Raw showings by cinema and outcome (accepted, skipped, duplicate).",
		}, []string{"cinema", "outcome"}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gokino",
			Name:      "exports_total",
			Help:      "Catalog exports by status.",
		}, []string{"status"}),
		ExportedShowTimes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gokino",
			Name:      "exported_showtimes",
			Help:      "Showtimes in the latest snapshot.",
		}),
		Removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gokino",
			Name:      "removed_records_total",
			Help:      "Records removed by cleanup or eviction.",
		}, []string{"entity"}),
		SyncPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gokino",
			Name:      "sync_polls_total",
			Help:      "Cache sync polls by outcome.",
		}, []string{"outcome"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ScrapeRuns,
		m.ScrapeDuration,
		m.Showings,
		m.Exports,
		m.ExportedShowTimes,
		m.Removed,
		m.SyncPolls,
	)
	return m
}
