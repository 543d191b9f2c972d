package orchestrator

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jobmesh-project/jobmesh/pkg/jobstore"
	"github.com/jobmesh-project/jobmesh/pkg/mana"
	"github.com/jobmesh-project/jobmesh/pkg/models"
	"github.com/jobmesh-project/jobmesh/pkg/pubsub"
	"github.com/jobmesh-project/jobmesh/pkg/receipt"
	"github.com/jobmesh-project/jobmesh/pkg/reputation"
	"github.com/jobmesh-project/jobmesh/pkg/selector"
	"github.com/jobmesh-project/jobmesh/pkg/system"
)

// DefaultBiddingWindow is how long a job accepts bids after bidding opens.
const DefaultBiddingWindow = 30 * time.Second

type MarketplaceParams struct {
	NodeID   string
	Store    jobstore.Store
	Selector *selector.Selector
	Receipts *receipt.Service

	// Mana and Reputation feed the post-receipt settlement loop. Either
	// may be nil, in which case that half of the feedback is skipped.
	Mana       *mana.Manager
	Reputation reputation.Directory

	AnnouncementPublisher pubsub.Publisher[models.JobAnnouncementV1]
	AssignmentPublisher   pubsub.Publisher[models.AssignJobV1]
	ReceiptPublisher      pubsub.Publisher[models.ExecutionReceiptAvailableV1]

	BiddingWindow time.Duration
	Clock         clock.Clock
	Metrics       *Metrics
}

// Marketplace drives the job protocol on a requester node: it accepts jobs,
// opens and expires bidding windows, records bids, selects winners, and
// settles verified execution receipts back into reputation and mana.
type Marketplace struct {
	nodeID        string
	store         jobstore.Store
	selector      *selector.Selector
	receipts      *receipt.Service
	mana          *mana.Manager
	reputation    reputation.Directory
	announcements pubsub.Publisher[models.JobAnnouncementV1]
	assignments   pubsub.Publisher[models.AssignJobV1]
	receiptFeed   pubsub.Publisher[models.ExecutionReceiptAvailableV1]
	biddingWindow time.Duration
	clock         clock.Clock
	metrics       *Metrics
	broadcaster   *bidBroadcaster
}

func NewMarketplace(params MarketplaceParams) *Marketplace {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.BiddingWindow <= 0 {
		params.BiddingWindow = DefaultBiddingWindow
	}
	return &Marketplace{
		nodeID:        params.NodeID,
		store:         params.Store,
		selector:      params.Selector,
		receipts:      params.Receipts,
		mana:          params.Mana,
		reputation:    params.Reputation,
		announcements: params.AnnouncementPublisher,
		assignments:   params.AssignmentPublisher,
		receiptFeed:   params.ReceiptPublisher,
		biddingWindow: params.BiddingWindow,
		clock:         params.Clock,
		metrics:       params.Metrics,
		broadcaster:   newBidBroadcaster(),
	}
}

// SubmitJob derives the request's content address, validates it and stores
// it in Pending state. Submitting the same content twice is rejected by the
// store, which is what makes job IDs collision-free.
func (m *Marketplace) SubmitJob(ctx context.Context, request models.JobRequest) (models.Job, error) {
	ctx, span := system.GetTracer().Start(ctx, "pkg/orchestrator.Marketplace.SubmitJob")
	defer span.End()

	if request.Timestamp.IsZero() {
		request.Timestamp = m.clock.Now().UTC()
	}
	if err := request.Normalize(); err != nil {
		return models.Job{}, err
	}
	if err := request.Validate(); err != nil {
		return models.Job{}, err
	}
	if err := m.store.CreateJob(ctx, request); err != nil {
		return models.Job{}, err
	}
	if m.metrics != nil {
		m.metrics.JobsSubmitted.Inc()
	}
	log.Ctx(ctx).Info().Str("JobID", request.ID).Str("Originator", request.Originator).
		Msg("job submitted")
	return m.store.GetJob(ctx, request.ID)
}

// OpenBidding transitions a Pending job to Bidding, announces it, and arms
// the window timer. A job that is still Bidding when the window elapses is
// moved to BiddingExpired.
func (m *Marketplace) OpenBidding(ctx context.Context, jobID string) (models.JobAnnouncementV1, error) {
	ctx, span := system.GetTracer().Start(ctx, "pkg/orchestrator.Marketplace.OpenBidding")
	defer span.End()

	err := m.store.UpdateJobState(ctx, jobstore.UpdateJobStateRequest{
		JobID:     jobID,
		Condition: jobstore.UpdateJobCondition{ExpectedStates: []models.JobStateType{models.JobStatePending}},
		NewState:  models.JobStateBidding,
	})
	if err != nil {
		return models.JobAnnouncementV1{}, err
	}

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return models.JobAnnouncementV1{}, err
	}

	announcement := models.JobAnnouncementV1{
		Job:             job.Request,
		BiddingDeadline: m.clock.Now().Add(m.biddingWindow).UTC(),
	}
	if m.announcements != nil {
		if err := m.announcements.Publish(ctx, announcement); err != nil {
			return models.JobAnnouncementV1{}, errors.Wrapf(err, "announcing job %s", jobID)
		}
	}

	m.clock.AfterFunc(m.biddingWindow, func() {
		m.expireBidding(jobID)
	})
	log.Ctx(ctx).Info().Str("JobID", jobID).Time("BiddingDeadline", announcement.BiddingDeadline).
		Msg("bidding opened")
	return announcement, nil
}

// expireBidding closes the window on a job that never got assigned. A job
// that moved on is left alone.
func (m *Marketplace) expireBidding(jobID string) {
	ctx := context.Background()
	err := m.store.UpdateJobState(ctx, jobstore.UpdateJobStateRequest{
		JobID:     jobID,
		Condition: jobstore.UpdateJobCondition{ExpectedStates: []models.JobStateType{models.JobStateBidding}},
		NewState:  models.JobStateBiddingExpired,
		Reason:    "bidding window elapsed without an assignment",
	})
	if err != nil {
		var invalidState jobstore.ErrInvalidJobState
		var terminal jobstore.ErrJobAlreadyTerminal
		if errors.As(err, &invalidState) || errors.As(err, &terminal) {
			return
		}
		log.Ctx(ctx).Error().Err(err).Str("JobID", jobID).Msg("failed to expire bidding window")
		return
	}
	if m.metrics != nil {
		m.metrics.BiddingExpired.Inc()
	}
	log.Ctx(ctx).Info().Str("JobID", jobID).Msg("bidding window expired")
}

// SubmitBid records an executor's bid against an open job and fans it out to
// live bid streams. The store rejects bids outside the bidding window.
func (m *Marketplace) SubmitBid(ctx context.Context, bid models.Bid) (models.Bid, error) {
	ctx, span := system.GetTracer().Start(ctx, "pkg/orchestrator.Marketplace.SubmitBid")
	defer span.End()

	bid.Normalize()
	if bid.CreateTime.IsZero() {
		bid.CreateTime = m.clock.Now().UTC()
	}
	if err := bid.Validate(); err != nil {
		return models.Bid{}, err
	}
	if err := m.store.CreateBid(ctx, bid); err != nil {
		return models.Bid{}, err
	}

	stored, err := m.store.GetBid(ctx, bid.ID)
	if err != nil {
		return models.Bid{}, err
	}
	m.broadcaster.Publish(stored)
	if m.metrics != nil {
		m.metrics.BidsReceived.Inc()
	}
	log.Ctx(ctx).Debug().Str("JobID", bid.JobID).Str("Bidder", bid.Bidder).Uint64("Price", bid.Price).
		Msg("bid recorded")
	return stored, nil
}

// SubscribeBids streams bids for a job as they arrive. The returned cancel
// function must be called to release the stream. Subscribers that stop
// draining miss bids; the store holds the complete record.
func (m *Marketplace) SubscribeBids(jobID string) (<-chan models.Bid, func()) {
	return m.broadcaster.Subscribe(jobID)
}

// Assign evaluates all recorded bids, commits the winner with an atomic
// compare-and-set, and notifies the winning executor. Exactly one bidder
// can win; a concurrent second Assign loses inside the store.
func (m *Marketplace) Assign(ctx context.Context, jobID string) (*selector.RankedBid, error) {
	ctx, span := system.GetTracer().Start(ctx, "pkg/orchestrator.Marketplace.Assign")
	defer span.End()

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	bids, err := m.store.GetBids(ctx, jobID)
	if err != nil {
		return nil, err
	}

	winner, ranked, err := m.selector.Select(ctx, job.Request, bids)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		log.Ctx(ctx).Warn().Str("JobID", jobID).Int("Bids", len(ranked)).
			Msg("no eligible bids")
		return nil, NewErrNoEligibleBids(jobID)
	}

	if err := m.store.AssignJob(ctx, jobID, winner.Bid.ID); err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.Assignments.Inc()
	}

	if m.assignments != nil {
		err = m.assignments.Publish(ctx, models.AssignJobV1{
			JobID:          jobID,
			Originator:     job.Request.Originator,
			TargetExecutor: winner.Bid.Bidder,
			WinningBidID:   winner.Bid.ID,
			JobDetails:     job.Request,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "notifying executor %s of assignment", winner.Bid.Bidder)
		}
	}
	log.Ctx(ctx).Info().Str("JobID", jobID).Str("Executor", winner.Bid.Bidder).
		Float64("Score", winner.Score).Msg("job assigned")
	return winner, nil
}

// UpdateJobStatus applies a lifecycle report from the assigned executor.
// Reports from any other identity are rejected.
func (m *Marketplace) UpdateJobStatus(ctx context.Context, update models.JobStatusUpdateV1) error {
	ctx, span := system.GetTracer().Start(ctx, "pkg/orchestrator.Marketplace.UpdateJobStatus")
	defer span.End()

	job, err := m.store.GetJob(ctx, update.JobID)
	if err != nil {
		return err
	}
	if job.State.Worker != "" && update.Executor != "" && job.State.Worker != update.Executor {
		return NewErrWrongExecutor(update.JobID, job.State.Worker, update.Executor)
	}

	var expected []models.JobStateType
	switch update.Status {
	case models.JobStateRunning:
		expected = []models.JobStateType{models.JobStateAssigned}
	case models.JobStateCompleted:
		expected = []models.JobStateType{models.JobStateRunning}
	case models.JobStateFailed:
		expected = []models.JobStateType{models.JobStateAssigned, models.JobStateRunning}
	default:
		return errors.Errorf("executors cannot report status %s", update.Status)
	}

	return m.store.UpdateJobState(ctx, jobstore.UpdateJobStateRequest{
		JobID:     update.JobID,
		Condition: jobstore.UpdateJobCondition{ExpectedStates: expected},
		NewState:  update.Status,
		Worker:    update.Executor,
		Reason:    update.Reason,
	})
}

// CancelJob moves a job to Cancelled from any non-terminal state.
func (m *Marketplace) CancelJob(ctx context.Context, jobID string, reason string) error {
	ctx, span := system.GetTracer().Start(ctx, "pkg/orchestrator.Marketplace.CancelJob")
	defer span.End()

	return m.store.UpdateJobState(ctx, jobstore.UpdateJobStateRequest{
		JobID:    jobID,
		NewState: models.JobStateCancelled,
		Reason:   reason,
	})
}

// HandleReceipt settles a finished execution. The signature and assignment
// checks are the hard gates: a receipt that cannot be verified, or that was
// issued by anyone other than the job's assigned executor, is rejected
// before any side effect.
// After that the receipt is anchored, announced and fed back into
// reputation and mana. Anchoring and feedback failures are logged and
// counted but never fail the settlement, so a flaky directory or store
// cannot make a valid receipt disappear.
func (m *Marketplace) HandleReceipt(ctx context.Context, r models.ExecutionReceipt) (models.ExecutionReceiptAvailableV1, error) {
	ctx, span := system.GetTracer().Start(ctx, "pkg/orchestrator.Marketplace.HandleReceipt")
	defer span.End()

	if err := receipt.Verify(r); err != nil {
		if m.metrics != nil {
			m.metrics.ReceiptsRejected.Inc()
		}
		return models.ExecutionReceiptAvailableV1{}, err
	}

	job, err := m.store.GetJob(ctx, r.JobID)
	if err != nil {
		return models.ExecutionReceiptAvailableV1{}, err
	}

	// Only the executor the job is pinned to may settle it, and only once
	// an assignment exists. A receipt against an unassigned job is work
	// nobody asked for, however well signed.
	switch job.State.StateType {
	case models.JobStateAssigned, models.JobStateRunning:
	default:
		if m.metrics != nil {
			m.metrics.ReceiptsRejected.Inc()
		}
		return models.ExecutionReceiptAvailableV1{}, jobstore.NewErrInvalidJobState(
			r.JobID, job.State.StateType, models.JobStateAssigned, models.JobStateRunning)
	}
	if job.State.Worker != r.Issuer {
		if m.metrics != nil {
			m.metrics.ReceiptsRejected.Inc()
		}
		return models.ExecutionReceiptAvailableV1{}, NewErrWrongExecutor(r.JobID, job.State.Worker, r.Issuer)
	}
	if m.metrics != nil {
		m.metrics.ReceiptsAccepted.Inc()
	}

	addr, anchorErr := m.receipts.Anchor(ctx, &r)
	anchored := anchorErr == nil
	if anchorErr != nil {
		if m.metrics != nil {
			m.metrics.AnchorFailures.Inc()
		}
		log.Ctx(ctx).Warn().Err(anchorErr).Str("JobID", r.JobID).Str("ReceiptAddress", addr.String()).
			Msg("anchoring failed, announcing locally computed receipt address")
	}

	announcement := models.ExecutionReceiptAvailableV1{
		JobID:          r.JobID,
		Executor:       r.Issuer,
		ReceiptAddress: addr.String(),
		Anchored:       anchored,
	}
	if m.receiptFeed != nil {
		if err := m.receiptFeed.Publish(ctx, announcement); err != nil {
			return models.ExecutionReceiptAvailableV1{}, errors.Wrapf(err, "announcing receipt for job %s", r.JobID)
		}
	}

	m.settle(ctx, job, r, announcement)
	return announcement, nil
}

// settle closes the job and applies reputation and mana feedback. All of it
// is best-effort.
func (m *Marketplace) settle(ctx context.Context, job models.Job, r models.ExecutionReceipt,
	announcement models.ExecutionReceiptAvailableV1) {
	var result *multierror.Error

	finalState := models.JobStateCompleted
	if !r.Success {
		finalState = models.JobStateFailed
	}
	err := m.store.UpdateJobState(ctx, jobstore.UpdateJobStateRequest{
		JobID:     job.ID(),
		Condition: jobstore.UpdateJobCondition{ExpectedStates: []models.JobStateType{models.JobStateAssigned, models.JobStateRunning}},
		NewState:  finalState,
		Worker:    r.Issuer,
		Reason:    "execution receipt " + r.ID,
	})
	if err != nil {
		var terminal jobstore.ErrJobAlreadyTerminal
		if !errors.As(err, &terminal) {
			result = multierror.Append(result, errors.Wrap(err, "closing job"))
		}
	}

	if m.reputation != nil {
		event := reputation.UpdateEvent{
			NodeID:      r.Issuer,
			ExecutionMS: r.Metrics.WallTimeMS,
			Timestamp:   m.clock.Now().UTC(),
		}
		if r.Success {
			event.Kind = reputation.JobCompletedSuccessfully
			event.OnTime = job.Request.Deadline == nil || r.Timestamp.Before(*job.Request.Deadline)
			if winning, werr := m.store.GetWinningBid(ctx, job.ID()); werr == nil {
				event.BidAccuracy = bidAccuracy(winning.Estimate, r.ResourceUsage)
			}
		} else {
			event.Kind = reputation.JobFailed
		}
		if announcement.Anchored {
			event.Anchor = announcement.ReceiptAddress
		}
		if err := m.reputation.SubmitEvent(ctx, event); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "submitting reputation event"))
		}
	}

	if m.mana != nil && r.Metrics.ManaCost != nil && *r.Metrics.ManaCost > 0 {
		scope := mana.Scope{Account: r.Issuer, Community: job.Request.Community}
		if err := m.mana.Consume(scope, *r.Metrics.ManaCost); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "debiting mana"))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		if m.metrics != nil {
			m.metrics.FeedbackFailures.Inc()
		}
		log.Ctx(ctx).Warn().Err(err).Str("JobID", job.ID()).Str("Executor", r.Issuer).
			Msg("receipt settled with partial feedback failures")
	}
}

// bidAccuracy measures how close an estimate came to the measured usage, in
// [0, 1]. An estimate that covers actual usage tightly scores high; wild
// over-estimates score low.
func bidAccuracy(estimate, usage models.Resources) float64 {
	if estimate.IsZero() || usage.IsZero() {
		return 0
	}
	ratio := estimate.MatchRatio(usage)
	if ratio > 1 {
		// usage overran the estimate; score by the inverse overrun
		ratio = 1 / ratio
	}
	return ratio
}
