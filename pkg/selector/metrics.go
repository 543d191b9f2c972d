package selector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the selector's observability counters, registered against an
// injected registry rather than the process-wide default so embedding
// applications control their own metric namespace.
type Metrics struct {
	BidsEvaluated           prometheus.Counter
	DisqualifiedResources   prometheus.Counter
	DisqualifiedMana        prometheus.Counter
	ReputationFetchFailures prometheus.Counter
	Selections              prometheus.Counter
	NoEligibleBids          prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BidsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: "selector_bids_evaluated_total",
			Help: "Number of bids that entered evaluation.",
		}),
		DisqualifiedResources: factory.NewCounter(prometheus.CounterOpts{
			Name: "selector_bids_disqualified_resources_total",
			Help: "Number of bids dropped because their estimate did not cover the job's requirements.",
		}),
		DisqualifiedMana: factory.NewCounter(prometheus.CounterOpts{
			Name: "selector_bids_disqualified_mana_total",
			Help: "Number of bids dropped because the bidder held insufficient mana.",
		}),
		ReputationFetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "selector_reputation_fetch_failures_total",
			Help: "Number of bids dropped because the bidder's reputation profile could not be fetched.",
		}),
		Selections: factory.NewCounter(prometheus.CounterOpts{
			Name: "selector_selections_total",
			Help: "Number of evaluations that produced a winner.",
		}),
		NoEligibleBids: factory.NewCounter(prometheus.CounterOpts{
			Name: "selector_no_eligible_bids_total",
			Help: "Number of evaluations where every bid was disqualified.",
		}),
	}
}
