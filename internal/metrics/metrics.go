package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// HTTP
	// ============================================
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendcash_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sendcash_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ============================================
	// Username cache
	// ============================================
	UsernameCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendcash_username_cache_lookups_total",
			Help: "Username cache lookups by result (hit, miss, not_found, error)",
		},
		[]string{"result"},
	)

	RegistryCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sendcash_registry_call_duration_seconds",
			Help:    "UsernameRegistry view call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// ============================================
	// Payments
	// ============================================
	PaymentsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendcash_payments_stored_total",
			Help: "Total number of payment upserts by source",
		},
		[]string{"source"},
	)

	// ============================================
	// Reminder scheduler
	// ============================================
	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendcash_scheduler_ticks_total",
			Help: "Scheduler ticks by outcome (completed, skipped_overlap, scan_failed)",
		},
		[]string{"outcome"},
	)

	SchedulerDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendcash_scheduler_dispatches_total",
			Help: "Notification dispatches by kind and result (sent, failed, skipped, settled)",
		},
		[]string{"kind", "result"},
	)

	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sendcash_scheduler_tick_duration_seconds",
		Help:    "Scheduler tick duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	SchedulerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sendcash_scheduler_state",
		Help: "Scheduler state (0=idle, 1=scanning, 2=dispatching)",
	})

	// ============================================
	// Chain watcher
	// ============================================
	WatcherLastBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sendcash_watcher_last_block",
		Help: "Last block scanned for PaymentSent logs",
	})

	WatcherErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendcash_watcher_errors_total",
			Help: "Total number of payment watcher errors",
		},
		[]string{"stage"},
	)

	// ============================================
	// NATS / websocket fan-out
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sendcash_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sendcash_events_published_total",
			Help: "Payment events published by sink and result",
		},
		[]string{"sink", "result"},
	)

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sendcash_websocket_clients",
		Help: "Number of connected websocket clients",
	})
)
