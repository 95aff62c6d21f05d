package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentpost_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Delivery metrics
	MessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentpost_messages_delivered_total",
			Help: "Messages durably stored after verified payment",
		},
	)

	PaymentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentpost_payment_failures_total",
			Help: "Payment proofs rejected, by reason",
		},
		[]string{"reason"},
	)

	DuplicateRedemptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentpost_duplicate_redemptions_total",
			Help: "Send attempts whose txid was already redeemed",
		},
	)

	SettleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentpost_settle_duration_seconds",
			Help:    "Relay settlement latency",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30},
		},
	)

	RecoveryVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentpost_recovery_verifications_total",
			Help: "Recovery-by-txid verification outcomes",
		},
		[]string{"outcome"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentpost_rate_limit_rejections_total",
			Help: "Requests rejected by the sliding-window limiter",
		},
		[]string{"scope"},
	)

	RepliesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentpost_replies_accepted_total",
			Help: "Replies attached to messages",
		},
	)

	DroppedPageRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentpost_dropped_page_records_total",
			Help: "Corrupt or missing records dropped while listing a page",
		},
	)
)
