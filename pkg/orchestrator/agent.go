package orchestrator

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ipfs/go-cid"
	libp2p_crypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jobmesh-project/jobmesh/pkg/dagstore"
	"github.com/jobmesh-project/jobmesh/pkg/executor"
	"github.com/jobmesh-project/jobmesh/pkg/models"
	"github.com/jobmesh-project/jobmesh/pkg/pubsub"
	"github.com/jobmesh-project/jobmesh/pkg/receipt"
)

type ExecutorAgentParams struct {
	// PrivateKey is the agent's identity. Receipts are signed with it, and
	// the bidder identity is the derived peer ID.
	PrivateKey libp2p_crypto.PrivKey

	// Capacity is what the agent offers in its bids. Announcements asking
	// for more are ignored.
	Capacity models.Resources
	Price    uint64

	Engine executor.Engine
	// Blocks resolves announced code references to program bytes.
	Blocks dagstore.Store

	BidPublisher     pubsub.Publisher[models.JobInterestV1]
	StatusPublisher  pubsub.Publisher[models.JobStatusUpdateV1]
	ReceiptPublisher pubsub.Publisher[models.ExecutionReceipt]

	ExecutionTimeout time.Duration
	Clock            clock.Clock
}

// ExecutorAgent is the compute side of the marketplace: it listens for job
// announcements, bids its capacity, and on assignment runs the program and
// returns a signed execution receipt.
type ExecutorAgent struct {
	key      libp2p_crypto.PrivKey
	id       peer.ID
	capacity models.Resources
	price    uint64
	engine   executor.Engine
	blocks   dagstore.Store
	bids     pubsub.Publisher[models.JobInterestV1]
	statuses pubsub.Publisher[models.JobStatusUpdateV1]
	receipts pubsub.Publisher[models.ExecutionReceipt]
	timeout  time.Duration
	clock    clock.Clock
}

func NewExecutorAgent(params ExecutorAgentParams) (*ExecutorAgent, error) {
	id, err := peer.IDFromPrivateKey(params.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "deriving agent identity")
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	return &ExecutorAgent{
		key:      params.PrivateKey,
		id:       id,
		capacity: params.Capacity,
		price:    params.Price,
		engine:   params.Engine,
		blocks:   params.Blocks,
		bids:     params.BidPublisher,
		statuses: params.StatusPublisher,
		receipts: params.ReceiptPublisher,
		timeout:  params.ExecutionTimeout,
		clock:    params.Clock,
	}, nil
}

// ID is the agent's marketplace identity.
func (a *ExecutorAgent) ID() string {
	return a.id.String()
}

// HandleAnnouncement bids on jobs the agent's capacity covers. It
// implements pubsub.Subscriber for the announcement topic.
func (a *ExecutorAgent) HandleAnnouncement(ctx context.Context, announcement models.JobAnnouncementV1) error {
	if !a.capacity.Covers(announcement.Job.Resources) {
		log.Ctx(ctx).Debug().Str("JobID", announcement.Job.ID).
			Msg("announcement exceeds capacity, not bidding")
		return nil
	}
	bid := models.Bid{
		JobID:      announcement.Job.ID,
		Bidder:     a.ID(),
		Price:      a.price,
		Estimate:   a.capacity,
		CreateTime: a.clock.Now().UTC(),
	}
	bid.Normalize()
	log.Ctx(ctx).Info().Str("JobID", bid.JobID).Uint64("Price", bid.Price).Msg("bidding on job")
	return a.bids.Publish(ctx, models.JobInterestV1{Bid: bid})
}

// HandleAssignment runs an assigned job and publishes the signed receipt.
// Assignments addressed to other executors are ignored. It implements
// pubsub.Subscriber for the assignment topic.
func (a *ExecutorAgent) HandleAssignment(ctx context.Context, assignment models.AssignJobV1) error {
	if assignment.TargetExecutor != a.ID() {
		return nil
	}
	log.Ctx(ctx).Info().Str("JobID", assignment.JobID).Msg("assignment received, starting execution")

	a.reportStatus(ctx, assignment.JobID, models.JobStateRunning, "")

	result, runErr := a.execute(ctx, assignment)
	if runErr != nil {
		// infrastructure fault rather than a program failure; still
		// receipted, as failed work
		log.Ctx(ctx).Error().Err(runErr).Str("JobID", assignment.JobID).Msg("execution faulted")
		result = executor.ExecutionResult{Success: false, ErrorMessage: runErr.Error()}
	}

	r := receipt.NewReceipt(a.id, assignment.JobID, assignment.WinningBidID,
		assignment.JobDetails.CodeRef, result.Success, result.Metrics, result.Usage,
		a.clock.Now())
	if err := receipt.Sign(&r, a.key); err != nil {
		return errors.Wrapf(err, "signing receipt for job %s", assignment.JobID)
	}
	return a.receipts.Publish(ctx, r)
}

func (a *ExecutorAgent) execute(ctx context.Context, assignment models.AssignJobV1) (executor.ExecutionResult, error) {
	code, err := a.resolveCode(ctx, assignment.JobDetails.CodeRef)
	if err != nil {
		return executor.ExecutionResult{}, errors.Wrapf(err, "resolving code %s", assignment.JobDetails.CodeRef)
	}
	return a.engine.Run(ctx, executor.ExecutionRequest{
		JobID:       assignment.JobID,
		ExecutionID: assignment.WinningBidID,
		CodeRef:     assignment.JobDetails.CodeRef,
		Code:        code,
		Limits:      assignment.JobDetails.Resources,
		Timeout:     a.timeout,
	})
}

func (a *ExecutorAgent) resolveCode(ctx context.Context, codeRef string) ([]byte, error) {
	c, err := cid.Decode(codeRef)
	if err != nil {
		return nil, errors.Wrap(err, "parsing code reference")
	}
	return a.blocks.Get(ctx, c)
}

func (a *ExecutorAgent) reportStatus(ctx context.Context, jobID string, status models.JobStateType, reason string) {
	if a.statuses == nil {
		return
	}
	err := a.statuses.Publish(ctx, models.JobStatusUpdateV1{
		JobID:    jobID,
		Executor: a.ID(),
		Status:   status,
		Reason:   reason,
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("JobID", jobID).Msg("failed to publish status update")
	}
}
