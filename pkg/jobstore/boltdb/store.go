package boltjobstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/jobmesh-project/jobmesh/pkg/jobstore"
	"github.com/jobmesh-project/jobmesh/pkg/models"
)

const (
	BucketJobs    = "jobs"     // job-id -> Job
	BucketBids    = "bids"     // bid-id -> Bid
	BucketJobBids = "job_bids" // bucket per job-id, sequence -> bid-id
	BucketWinners = "winners"  // job-id -> bid-id
)

// BoltJobStore persists jobs and bids in a bbolt database. bbolt serializes
// writers, so every conditional transition runs its check and its write
// inside one transaction.
type BoltJobStore struct {
	database *bolt.DB
	clock    clock.Clock
}

type Option func(store *BoltJobStore)

func WithClock(clock clock.Clock) Option {
	return func(store *BoltJobStore) {
		store.clock = clock
	}
}

func NewBoltJobStore(dbPath string, options ...Option) (*BoltJobStore, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening job store database at %s", dbPath)
	}

	store := &BoltJobStore{
		database: db,
		clock:    clock.New(),
	}
	for _, opt := range options {
		opt(store)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{BucketJobs, BucketBids, BucketJobBids, BucketWinners} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating job store buckets")
	}
	return store, nil
}

func (b *BoltJobStore) getJobTx(tx *bolt.Tx, id string) (models.Job, error) {
	data := tx.Bucket([]byte(BucketJobs)).Get([]byte(id))
	if data == nil {
		return models.Job{}, jobstore.NewErrJobNotFound(id)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return models.Job{}, err
	}
	return job, nil
}

func (b *BoltJobStore) putJobTx(tx *bolt.Tx, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(BucketJobs)).Put([]byte(job.ID()), data)
}

func (b *BoltJobStore) CreateJob(_ context.Context, request models.JobRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}
	return b.database.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(BucketJobs)).Get([]byte(request.ID)) != nil {
			return jobstore.NewErrJobAlreadyExists(request.ID)
		}
		now := b.clock.Now().UTC().UnixNano()
		job := models.Job{
			Request:    request,
			State:      models.NewJobState(models.JobStatePending),
			Revision:   1,
			CreateTime: now,
			ModifyTime: now,
		}
		if _, err := tx.Bucket([]byte(BucketJobBids)).CreateBucketIfNotExists([]byte(request.ID)); err != nil {
			return err
		}
		return b.putJobTx(tx, job)
	})
}

func (b *BoltJobStore) GetJob(_ context.Context, id string) (job models.Job, err error) {
	err = b.database.View(func(tx *bolt.Tx) error {
		job, err = b.getJobTx(tx, id)
		return err
	})
	return job, err
}

func (b *BoltJobStore) GetJobs(_ context.Context, query jobstore.JobQuery) ([]models.Job, error) {
	var result []models.Job
	err := b.database.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketJobs)).ForEach(func(_, data []byte) error {
			var job models.Job
			if err := json.Unmarshal(data, &job); err != nil {
				return err
			}
			if !query.Status.IsUndefined() && job.State.StateType != query.Status {
				return nil
			}
			if query.Worker != "" && job.State.Worker != query.Worker {
				return nil
			}
			result = append(result, job)
			return nil
		})
	})
	if err != nil {
		return nil, err
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

func (b *BoltJobStore) UpdateJobState(_ context.Context, request jobstore.UpdateJobStateRequest) error {
	return b.database.Update(func(tx *bolt.Tx) error {
		job, err := b.getJobTx(tx, request.JobID)
		if err != nil {
			return err
		}
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
		job.ModifyTime = b.clock.Now().UTC().UnixNano()
		return b.putJobTx(tx, job)
	})
}

func (b *BoltJobStore) CreateBid(_ context.Context, bid models.Bid) error {
	if err := bid.Validate(); err != nil {
		return err
	}
	return b.database.Update(func(tx *bolt.Tx) error {
		job, err := b.getJobTx(tx, bid.JobID)
		if err != nil {
			return err
		}
		if !job.State.StateType.AcceptsBids() {
			return jobstore.NewErrInvalidJobState(
				bid.JobID, job.State.StateType, models.JobStatePending, models.JobStateBidding)
		}
		if tx.Bucket([]byte(BucketBids)).Get([]byte(bid.ID)) != nil {
			return jobstore.NewErrBidAlreadyExists(bid.ID)
		}

		jobBids := tx.Bucket([]byte(BucketJobBids)).Bucket([]byte(bid.JobID))
		if jobBids == nil {
			return jobstore.NewErrJobNotFound(bid.JobID)
		}
		seq, err := jobBids.NextSequence()
		if err != nil {
			return err
		}
		bid.Sequence = seq
		if bid.CreateTime.IsZero() {
			bid.CreateTime = b.clock.Now().UTC()
		}

		data, err := json.Marshal(bid)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(BucketBids)).Put([]byte(bid.ID), data); err != nil {
			return err
		}
		return jobBids.Put(sequenceKey(seq), []byte(bid.ID))
	})
}

func (b *BoltJobStore) getBidTx(tx *bolt.Tx, id string) (models.Bid, error) {
	data := tx.Bucket([]byte(BucketBids)).Get([]byte(id))
	if data == nil {
		return models.Bid{}, jobstore.NewErrBidNotFound(id)
	}
	var bid models.Bid
	if err := json.Unmarshal(data, &bid); err != nil {
		return models.Bid{}, err
	}
	return bid, nil
}

func (b *BoltJobStore) GetBid(_ context.Context, id string) (bid models.Bid, err error) {
	err = b.database.View(func(tx *bolt.Tx) error {
		bid, err = b.getBidTx(tx, id)
		return err
	})
	return bid, err
}

func (b *BoltJobStore) GetBids(_ context.Context, jobID string) ([]models.Bid, error) {
	var result []models.Bid
	err := b.database.View(func(tx *bolt.Tx) error {
		jobBids := tx.Bucket([]byte(BucketJobBids)).Bucket([]byte(jobID))
		if jobBids == nil {
			return jobstore.NewErrJobNotFound(jobID)
		}
		// sequence keys are big-endian, so cursor order is submission order
		return jobBids.ForEach(func(_, bidID []byte) error {
			bid, err := b.getBidTx(tx, string(bidID))
			if err != nil {
				return err
			}
			result = append(result, bid)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *BoltJobStore) AssignJob(_ context.Context, jobID string, bidID string) error {
	return b.database.Update(func(tx *bolt.Tx) error {
		job, err := b.getJobTx(tx, jobID)
		if err != nil {
			return err
		}
		bid, err := b.getBidTx(tx, bidID)
		if err != nil || bid.JobID != jobID {
			return jobstore.NewErrBidNotFound(bidID)
		}
		if job.State.StateType != models.JobStateBidding {
			return jobstore.NewErrInvalidJobState(jobID, job.State.StateType, models.JobStateBidding)
		}

		job.State.StateType = models.JobStateAssigned
		job.State.Worker = bid.Bidder
		job.Revision++
		job.ModifyTime = b.clock.Now().UTC().UnixNano()
		if err := b.putJobTx(tx, job); err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketWinners)).Put([]byte(jobID), []byte(bidID))
	})
}

func (b *BoltJobStore) GetWinningBid(_ context.Context, jobID string) (bid models.Bid, err error) {
	err = b.database.View(func(tx *bolt.Tx) error {
		if _, err := b.getJobTx(tx, jobID); err != nil {
			return err
		}
		bidID := tx.Bucket([]byte(BucketWinners)).Get([]byte(jobID))
		if bidID == nil {
			return jobstore.NewErrNoWinningBid(jobID)
		}
		bid, err = b.getBidTx(tx, string(bidID))
		return err
	})
	return bid, err
}

func (b *BoltJobStore) Close(_ context.Context) error {
	return b.database.Close()
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8) //nolint:gomnd
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Static check to ensure that BoltJobStore implements Store:
var _ jobstore.Store = (*BoltJobStore)(nil)
