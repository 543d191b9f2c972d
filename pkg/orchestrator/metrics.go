package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the marketplace's observability counters, registered against
// an injected registry so embedding applications control their own metric
// namespace.
type Metrics struct {
	JobsSubmitted    prometheus.Counter
	BidsReceived     prometheus.Counter
	Assignments      prometheus.Counter
	BiddingExpired   prometheus.Counter
	ReceiptsAccepted prometheus.Counter
	ReceiptsRejected prometheus.Counter
	AnchorFailures   prometheus.Counter
	FeedbackFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_jobs_submitted_total",
			Help: "Number of jobs accepted into the lifecycle store.",
		}),
		BidsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_bids_received_total",
			Help: "Number of bids recorded against open jobs.",
		}),
		Assignments: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_assignments_total",
			Help: "Number of jobs assigned to a winning bidder.",
		}),
		BiddingExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_bidding_expired_total",
			Help: "Number of jobs whose bidding window closed without an assignment.",
		}),
		ReceiptsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_receipts_accepted_total",
			Help: "Number of execution receipts that passed signature verification.",
		}),
		ReceiptsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_receipts_rejected_total",
			Help: "Number of execution receipts rejected at signature verification.",
		}),
		AnchorFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_receipt_anchor_failures_total",
			Help: "Number of receipts announced with a local address because anchoring failed.",
		}),
		FeedbackFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_feedback_failures_total",
			Help: "Number of receipts whose reputation or mana feedback partially failed.",
		}),
	}
}
