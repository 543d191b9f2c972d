package jobstore

import (
	"context"

	"github.com/jobmesh-project/jobmesh/pkg/models"
)

// JobQuery filters job listings. Zero values mean "don't filter".
type JobQuery struct {
	// Status filters by exact lifecycle state.
	Status models.JobStateType
	// Worker filters by the identity the job is assigned to or running on.
	Worker string
	// Limit caps the number of returned jobs; 0 means unlimited.
	Limit uint32
}

// UpdateJobCondition is the compare half of the store's compare-and-set
// transitions. Validation happens inside the same critical section as the
// transition, so two racing updates can't both pass.
type UpdateJobCondition struct {
	ExpectedStates []models.JobStateType
}

func (c UpdateJobCondition) Validate(job models.Job) error {
	if len(c.ExpectedStates) == 0 {
		return nil
	}
	for _, expected := range c.ExpectedStates {
		if job.State.StateType == expected {
			return nil
		}
	}
	return NewErrInvalidJobState(job.ID(), job.State.StateType, c.ExpectedStates...)
}

// UpdateJobStateRequest is a conditional state transition.
type UpdateJobStateRequest struct {
	JobID     string
	Condition UpdateJobCondition
	NewState  models.JobStateType
	// Worker pins the job to an executor identity on Assigned/Running
	// transitions. Empty leaves the current worker untouched.
	Worker string
	// Reason records why a job failed or was cancelled.
	Reason string
}

// Store is the job lifecycle store: the durable home of job requests, their
// single mutable state record, and the bids recorded against them.
//
// Implementations must serialize bid submission and state mutation per job:
// state checks and the transitions they guard happen under one critical
// section, and a reader never observes a state/worker pair that never
// existed.
type Store interface {
	// CreateJob stores a new request in Pending state.
	CreateJob(ctx context.Context, request models.JobRequest) error
	GetJob(ctx context.Context, id string) (models.Job, error)
	GetJobs(ctx context.Context, query JobQuery) ([]models.Job, error)

	// UpdateJobState transitions a job, validating the request's condition
	// and the state machine's own rules atomically. Terminal jobs reject
	// all transitions with ErrJobAlreadyTerminal; illegal transitions and
	// failed conditions get ErrInvalidJobState.
	UpdateJobState(ctx context.Context, request UpdateJobStateRequest) error

	// CreateBid records a bid, assigning it the job's next submission
	// sequence number. Only legal while the job accepts bids; otherwise
	// ErrInvalidJobState.
	CreateBid(ctx context.Context, bid models.Bid) error
	GetBid(ctx context.Context, id string) (models.Bid, error)
	// GetBids returns all bids for a job in submission order.
	GetBids(ctx context.Context, jobID string) ([]models.Bid, error)

	// AssignJob atomically transitions a Bidding job to Assigned with the
	// bid's bidder as worker and marks that bid as the job's one winning
	// bid. A concurrent second assignment loses with ErrInvalidJobState.
	AssignJob(ctx context.Context, jobID string, bidID string) error
	// GetWinningBid returns the bid marked as winner, or ErrNoWinningBid.
	GetWinningBid(ctx context.Context, jobID string) (models.Bid, error)

	Close(ctx context.Context) error
}
