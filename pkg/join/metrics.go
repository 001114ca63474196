package join

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the join engine.
var (
	pagesRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mangadex_join_pages_requested_total",
		Help: "Total listing pages requested",
	})

	pagesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mangadex_join_pages_failed_total",
		Help: "Total listing pages that failed to fetch or decode",
	})

	recordsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mangadex_join_records_skipped_total",
		Help: "Listing records skipped by reason",
	}, []string{"reason"}) // "decode", "missing_relationship"

	enrichmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mangadex_join_enrichments_total",
		Help: "Enrichment fetches by kind and outcome",
	}, []string{"kind", "status"}) // kind: "cover", "author"; status: "merged", "orphan", "transport_error", "decode_error"

	incompleteEntities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mangadex_join_incomplete_entities",
		Help: "Entities currently waiting for enrichment",
	})

	completedEntities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mangadex_join_completed_entities",
		Help: "Entities published to the completed collection",
	})

	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mangadex_join_duplicates_total",
		Help: "Completed entities discarded because their id was already published",
	})

	completionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mangadex_join_completion_seconds",
		Help:    "Time from registration to completion of an entity",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)
