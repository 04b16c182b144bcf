package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsCreated counts persisted notifications by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_notifications_created_total",
			Help: "Total number of notifications created",
		},
		[]string{"type"},
	)

	// NotificationServiceErrors counts swallowed notification service failures by operation.
	NotificationServiceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_notification_service_errors_total",
			Help: "Notification service failures absorbed into safe defaults",
		},
		[]string{"operation"},
	)

	// FeedEvents counts change-feed deliveries by table, event type and outcome (delivered|dropped).
	FeedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_feed_events_total",
			Help: "Change feed events by outcome",
		},
		[]string{"table", "event", "outcome"},
	)

	// ActiveSubscriptions tracks live notification channel subscriptions.
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "learnhub_notification_subscriptions",
			Help: "Number of active notification channel subscriptions",
		},
	)

	// RealtimeConnections tracks open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "learnhub_realtime_connections",
			Help: "Number of open realtime websocket connections",
		},
	)

	// ReminderPopups counts popup gate outcomes (shown|skipped|empty).
	ReminderPopups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_reminder_popups_total",
			Help: "Reminder popup gate outcomes",
		},
		[]string{"outcome"},
	)

	// RemindersDismissed counts durable reminder dismissals.
	RemindersDismissed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learnhub_reminders_dismissed_total",
			Help: "Total number of reminders dismissed by viewers",
		},
	)

	// MaintenanceRuns counts maintenance job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_maintenance_runs_total",
			Help: "Maintenance job executions",
		},
		[]string{"job", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "learnhub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPInFlight tracks requests currently being served, websocket upgrades excluded.
	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "learnhub_http_in_flight_requests",
			Help: "HTTP requests currently being served",
		},
	)
)
