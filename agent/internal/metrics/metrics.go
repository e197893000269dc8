package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "walletwatch"

var (
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Provider calls by provider, chain and outcome (ok or error kind)",
	}, []string{"provider", "chain", "outcome"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Provider call latency including the hard deadline",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider", "chain"})

	FetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "all_providers_failed_total",
		Help:      "Watch entries for which every provider failed",
	}, []string{"chain"})

	EntriesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "entries_total",
		Help:      "Watch entries by final status",
	}, []string{"status"})

	AlertsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "alerts_created_total",
		Help:      "Alerts persisted by chain and classification",
	}, []string{"chain", "classification"})

	DuplicateAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "duplicate_alerts_total",
		Help:      "Create-if-absent calls that hit an existing alert",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one monitor cycle",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "notifications_total",
		Help:      "Delivery attempts by channel and outcome (delivered, failed, skipped)",
	}, []string{"channel", "outcome"})

	PriceLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pricing",
		Name:      "lookups_total",
		Help:      "Price lookups by source (cache, coingecko, binance, static, miss)",
	}, []string{"source"})
)
