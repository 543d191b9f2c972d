package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"golang.org/x/exp/maps"

	"github.com/jobmesh-project/jobmesh/pkg/jobstore"
	"github.com/jobmesh-project/jobmesh/pkg/models"
)

type InMemoryJobStore struct {
	// jobs is a map of job ID to job
	jobs map[string]models.Job
	// bids is a map of bid ID to bid
	bids map[string]models.Bid
	// jobBids is a map of job ID to bid IDs in submission order
	jobBids map[string][]string
	// winners is a map of job ID to the single winning bid ID
	winners map[string]string
	mtx     sync.RWMutex
	clock   clock.Clock
}

type Option func(store *InMemoryJobStore)

func WithClock(clock clock.Clock) Option {
	return func(store *InMemoryJobStore) {
		store.clock = clock
	}
}

func NewInMemoryJobStore(options ...Option) *InMemoryJobStore {
	res := &InMemoryJobStore{
		jobs:    make(map[string]models.Job),
		bids:    make(map[string]models.Bid),
		jobBids: make(map[string][]string),
		winners: make(map[string]string),
		clock:   clock.New(),
	}
	for _, opt := range options {
		opt(res)
	}
	return res
}

func (d *InMemoryJobStore) CreateJob(_ context.Context, request models.JobRequest) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if err := request.Validate(); err != nil {
		return err
	}
	if _, ok := d.jobs[request.ID]; ok {
		return jobstore.NewErrJobAlreadyExists(request.ID)
	}

	now := d.clock.Now().UTC().UnixNano()
	d.jobs[request.ID] = models.Job{
		Request:    request,
		State:      models.NewJobState(models.JobStatePending),
		Revision:   1,
		CreateTime: now,
		ModifyTime: now,
	}
	d.jobBids[request.ID] = []string{}
	return nil
}

func (d *InMemoryJobStore) GetJob(_ context.Context, id string) (models.Job, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return d.getJob(id)
}

// helper to read a single job. Callers are expected to hold the lock; no
// lock is acquired here to avoid deadlocks since golang doesn't support
// reentrant locks.
func (d *InMemoryJobStore) getJob(id string) (models.Job, error) {
	j, ok := d.jobs[id]
	if !ok {
		return models.Job{}, jobstore.NewErrJobNotFound(id)
	}
	return j, nil
}

func (d *InMemoryJobStore) GetJobs(_ context.Context, query jobstore.JobQuery) ([]models.Job, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	var result []models.Job
	for _, j := range maps.Values(d.jobs) {
		if !query.Status.IsUndefined() && j.State.StateType != query.Status {
			continue
		}
		if query.Worker != "" && j.State.Worker != query.Worker {
			continue
		}
		result = append(result, j)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreateTime != result[j].CreateTime {
			return result[i].CreateTime < result[j].CreateTime
		}
		return result[i].ID() < result[j].ID()
	})
	if query.Limit > 0 && uint32(len(result)) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

func (d *InMemoryJobStore) UpdateJobState(_ context.Context, request jobstore.UpdateJobStateRequest) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	job, err := d.getJob(request.JobID)
	if err != nil {
		return err
	}

	// check the expected state inside the same critical section that
	// performs the transition
	if err := request.Condition.Validate(job); err != nil {
		return err
	}
	if job.IsTerminal() {
		return jobstore.NewErrJobAlreadyTerminal(request.JobID, job.State.StateType, request.NewState)
	}
	if !job.State.StateType.CanTransitionTo(request.NewState) {
		return jobstore.NewErrInvalidJobState(request.JobID, job.State.StateType)
	}

	job.State.StateType = request.NewState
	if request.Worker != "" {
		job.State.Worker = request.Worker
	}
	if request.Reason != "" {
		job.State.Reason = request.Reason
	}
	job.Revision++
	job.ModifyTime = d.clock.Now().UTC().UnixNano()
	d.jobs[request.JobID] = job
	return nil
}

func (d *InMemoryJobStore) CreateBid(_ context.Context, bid models.Bid) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if err := bid.Validate(); err != nil {
		return err
	}
	job, err := d.getJob(bid.JobID)
	if err != nil {
		return err
	}
	if !job.State.StateType.AcceptsBids() {
		return jobstore.NewErrInvalidJobState(
			bid.JobID, job.State.StateType, models.JobStatePending, models.JobStateBidding)
	}
	if _, ok := d.bids[bid.ID]; ok {
		return jobstore.NewErrBidAlreadyExists(bid.ID)
	}

	bid.Sequence = uint64(len(d.jobBids[bid.JobID])) + 1
	if bid.CreateTime.IsZero() {
		bid.CreateTime = d.clock.Now().UTC()
	}
	d.bids[bid.ID] = bid
	d.jobBids[bid.JobID] = append(d.jobBids[bid.JobID], bid.ID)
	return nil
}

func (d *InMemoryJobStore) GetBid(_ context.Context, id string) (models.Bid, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	bid, ok := d.bids[id]
	if !ok {
		return models.Bid{}, jobstore.NewErrBidNotFound(id)
	}
	return bid, nil
}

func (d *InMemoryJobStore) GetBids(_ context.Context, jobID string) ([]models.Bid, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	bidIDs, ok := d.jobBids[jobID]
	if !ok {
		return nil, jobstore.NewErrJobNotFound(jobID)
	}
	result := make([]models.Bid, 0, len(bidIDs))
	for _, id := range bidIDs {
		result = append(result, d.bids[id])
	}
	return result, nil
}

func (d *InMemoryJobStore) AssignJob(_ context.Context, jobID string, bidID string) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	job, err := d.getJob(jobID)
	if err != nil {
		return err
	}
	bid, ok := d.bids[bidID]
	if !ok || bid.JobID != jobID {
		return jobstore.NewErrBidNotFound(bidID)
	}

	// the state check and the transition happen under one lock, so the
	// loser of two racing assignments gets an explicit error instead of a
	// corrupted status
	if job.State.StateType != models.JobStateBidding {
		return jobstore.NewErrInvalidJobState(jobID, job.State.StateType, models.JobStateBidding)
	}

	job.State.StateType = models.JobStateAssigned
	job.State.Worker = bid.Bidder
	job.Revision++
	job.ModifyTime = d.clock.Now().UTC().UnixNano()
	d.jobs[jobID] = job
	d.winners[jobID] = bidID
	return nil
}

func (d *InMemoryJobStore) GetWinningBid(_ context.Context, jobID string) (models.Bid, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	if _, err := d.getJob(jobID); err != nil {
		return models.Bid{}, err
	}
	bidID, ok := d.winners[jobID]
	if !ok {
		return models.Bid{}, jobstore.NewErrNoWinningBid(jobID)
	}
	return d.bids[bidID], nil
}

func (d *InMemoryJobStore) Close(_ context.Context) error {
	return nil
}

// Static check to ensure that InMemoryJobStore implements Store:
var _ jobstore.Store = (*InMemoryJobStore)(nil)
