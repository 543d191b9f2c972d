package selector

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jobmesh-project/jobmesh/pkg/models"
	"github.com/jobmesh-project/jobmesh/pkg/reputation"
)

// DisqualifiedScore is the sentinel rank of a bid that failed a hard
// precondition. Never selectable, regardless of every other signal.
const DisqualifiedScore float64 = -1

const defaultFetchTimeout = 5 * time.Second

// DefaultPriceCap normalizes prices into [0, 1]; anything at or above the
// cap scores zero on price.
const DefaultPriceCap uint64 = 1000

// Weights tune the scoring terms. They need not sum to 1.
type Weights struct {
	Price      float64 `json:"Price"`
	Resources  float64 `json:"Resources"`
	Reputation float64 `json:"Reputation"`
	Timeliness float64 `json:"Timeliness"`
}

var DefaultWeights = Weights{
	Price:      0.3,
	Resources:  0.2,
	Reputation: 0.4,
	Timeliness: 0.1,
}

// RankedBid is a bid with its evaluation outcome. Disqualified bids carry
// the sentinel score and a reason.
type RankedBid struct {
	Bid    models.Bid
	Score  float64
	Reason string
}

func (r RankedBid) Disqualified() bool {
	return r.Score == DisqualifiedScore
}

type SelectorParams struct {
	Weights  Weights
	PriceCap uint64
	// Directory provides reputation profiles (including the mana sub-state
	// used for gating).
	Directory reputation.Directory
	// FetchTimeout bounds each per-bidder profile fetch; a timeout
	// disqualifies that bidder only.
	FetchTimeout time.Duration
	Metrics      *Metrics
}

// Selector scores bids and picks at most one winner for a job.
type Selector struct {
	weights      Weights
	priceCap     uint64
	directory    reputation.Directory
	fetchTimeout time.Duration
	metrics      *Metrics
}

func NewSelector(params SelectorParams) *Selector {
	if params.Weights == (Weights{}) {
		params.Weights = DefaultWeights
	}
	if params.PriceCap == 0 {
		params.PriceCap = DefaultPriceCap
	}
	if params.FetchTimeout == 0 {
		params.FetchTimeout = defaultFetchTimeout
	}
	if params.Metrics == nil {
		params.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Selector{
		weights:      params.Weights,
		priceCap:     params.PriceCap,
		directory:    params.Directory,
		fetchTimeout: params.FetchTimeout,
		metrics:      params.Metrics,
	}
}

// Select evaluates every bid against the job and returns the single winner,
// or nil when every bid is disqualified. The full ranking is returned for
// observability. Deterministic: identical inputs produce identical output.
func (s *Selector) Select(ctx context.Context, job models.JobRequest, bids []models.Bid) (*RankedBid, []RankedBid, error) {
	if job.ID == "" {
		return nil, nil, errors.New("cannot select a bid for a job without an ID")
	}

	ranked := make([]RankedBid, 0, len(bids))
	for _, bid := range bids {
		s.metrics.BidsEvaluated.Inc()
		ranked = append(ranked, s.evaluate(ctx, job, bid))
	}

	candidates := make([]RankedBid, 0, len(ranked))
	for _, r := range ranked {
		if !r.Disqualified() {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		s.metrics.NoEligibleBids.Inc()
		return nil, ranked, nil
	}

	// highest score wins; ties broken by lowest price, then earliest
	// submission
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Bid.Price != candidates[j].Bid.Price {
			return candidates[i].Bid.Price < candidates[j].Bid.Price
		}
		return candidates[i].Bid.Sequence < candidates[j].Bid.Sequence
	})

	winner := candidates[0]
	s.metrics.Selections.Inc()
	log.Ctx(ctx).Debug().
		Str("JobID", job.ID).
		Str("Bidder", winner.Bid.Bidder).
		Float64("Score", winner.Score).
		Int("Candidates", len(candidates)).
		Msg("selected winning bid")
	return &winner, ranked, nil
}

func (s *Selector) evaluate(ctx context.Context, job models.JobRequest, bid models.Bid) RankedBid {
	// hard disqualification: an estimate below any required dimension makes
	// the bid unselectable at any price
	if !bid.Estimate.Covers(job.Resources) {
		s.metrics.DisqualifiedResources.Inc()
		return RankedBid{Bid: bid, Score: DisqualifiedScore, Reason: "estimate below required resources"}
	}

	profile, ok, reason := s.fetchProfile(ctx, job, bid)
	if !ok {
		return RankedBid{Bid: bid, Score: DisqualifiedScore, Reason: reason}
	}

	// mana gating precedes scoring so an underfunded bidder never wins
	// regardless of price or reputation
	if job.RequiredMana > 0 {
		if profile.Mana == nil || profile.Mana.Current < job.RequiredMana {
			s.metrics.DisqualifiedMana.Inc()
			return RankedBid{Bid: bid, Score: DisqualifiedScore, Reason: "insufficient mana"}
		}
	}

	return RankedBid{Bid: bid, Score: s.score(job, bid, profile)}
}

// fetchProfile resolves the bidder's reputation profile. A missing profile
// is acceptable when the job doesn't gate on mana: the bid's own score
// snapshot (or a neutral default) stands in. Directory failures disqualify
// this bidder only and never abort the evaluation of the rest.
func (s *Selector) fetchProfile(ctx context.Context, job models.JobRequest, bid models.Bid) (reputation.Profile, bool, string) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	profile, err := s.directory.GetProfile(fetchCtx, bid.Bidder)
	if err == nil {
		return profile, true, ""
	}

	if errors.As(err, &reputation.ErrProfileNotFound{}) {
		if job.RequiredMana > 0 {
			s.metrics.DisqualifiedMana.Inc()
			return reputation.Profile{}, false, "no reputation profile for mana-gated job"
		}
		fallback := reputation.Profile{NodeID: bid.Bidder}
		fallback.ComputedScore = fallback.ComputeScore()
		if bid.ReputationScore != nil {
			fallback.ComputedScore = *bid.ReputationScore
		}
		return fallback, true, ""
	}

	s.metrics.ReputationFetchFailures.Inc()
	log.Ctx(ctx).Warn().Err(err).
		Str("JobID", job.ID).
		Str("Bidder", bid.Bidder).
		Msg("reputation fetch failed, disqualifying bidder")
	return reputation.Profile{}, false, "reputation fetch failed"
}

func (s *Selector) score(job models.JobRequest, bid models.Bid, profile reputation.Profile) float64 {
	normalizedPrice := float64(bid.Price) / float64(s.priceCap)
	if normalizedPrice > 1 {
		normalizedPrice = 1
	}

	timeliness := 0.5
	if profile.SuccessfulJobs > 0 {
		timeliness = float64(profile.OnTimeJobs) / float64(profile.SuccessfulJobs)
	}

	return s.weights.Price*(1-normalizedPrice) +
		s.weights.Resources*bid.Estimate.MatchRatio(job.Resources) +
		s.weights.Reputation*(profile.ComputedScore/100) + //nolint:gomnd
		s.weights.Timeliness*timeliness
}
