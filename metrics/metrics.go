// Package metrics defines Prometheus metrics for the scraper daemon.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PagesScraped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aptscrooper_pages_scraped_total",
			Help: "Property pages scraped, by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ScrapeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aptscrooper_property_scrape_seconds",
			Help:    "Time spent rendering and extracting one property",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider"},
	)

	SpecialsUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aptscrooper_specials_upserted_total",
			Help: "Specials written by the reconciler, by action",
		},
		[]string{"action"},
	)

	SpecialsDeactivated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aptscrooper_specials_deactivated_total",
			Help: "Specials deactivated by sweep kind",
		},
		[]string{"sweep"},
	)

	EditConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aptscrooper_field_edit_conflicts_total",
			Help: "Scraped values that disagreed with a standing human edit",
		},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aptscrooper_errors_total",
			Help: "Soft errors by kind",
		},
		[]string{"kind"},
	)

	LastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aptscrooper_last_run_timestamp_seconds",
			Help: "Unix time of the last finished run per provider",
		},
		[]string{"provider"},
	)
)

// Error kinds
const (
	ErrNavigation = "navigation"
	ErrNoData     = "no_data"
	ErrResolve    = "resolve"
	ErrWrite      = "write"
)

func init() {
	prometheus.MustRegister(
		PagesScraped, ScrapeDuration,
		SpecialsUpserted, SpecialsDeactivated,
		EditConflicts, ErrorsTotal, LastRunTimestamp,
	)
}
