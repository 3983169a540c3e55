package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Save reconciliation
	SavesStagedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinobot_saves_staged_total",
		Help: "Pending saves written after all pre-checks passed",
	})
	SavesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dinobot_saves_rejected_total",
		Help: "Save attempts refused before or after staging, by failure kind",
	}, []string{"kind"})
	SavesCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinobot_saves_committed_total",
		Help: "Pending saves committed to permanent storage",
	})
	SaveConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinobot_save_conflicts_total",
		Help: "Claims that found more than one staged row",
	})
	PendingSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinobot_pending_swept_total",
		Help: "Stale pending saves removed by the sweeper or UI timeout",
	})
	CommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dinobot_commit_latency_seconds",
		Help:    "Time from claim to committed row",
		Buckets: prometheus.DefBuckets,
	})

	// Log watcher
	LogLinesReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinobot_logwatch_lines_total",
		Help: "Lines read from the game log",
	})
	DeparturesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinobot_logwatch_departures_total",
		Help: "Departure lines forwarded to the reconciler",
	})
	DeparturesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dinobot_logwatch_departures_dropped_total",
		Help: "Departure lines not forwarded, by reason",
	}, []string{"reason"})
	LogReadErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinobot_logwatch_read_errors_total",
		Help: "Failed read attempts on the game log",
	})
	LogTruncationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinobot_logwatch_truncations_total",
		Help: "Times the game log shrank and the offset was reset",
	})

	// Subscriptions
	SubscriptionsRenewedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinobot_subscriptions_renewed_total",
		Help: "Subscriptions renewed automatically from balance",
	})
	SubscriptionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dinobot_subscriptions_expired_total",
		Help: "Subscriptions deactivated after expiry",
	})
)
