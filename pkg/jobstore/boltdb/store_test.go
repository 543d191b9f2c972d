//go:build unit || !integration

package boltjobstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/jobmesh-project/jobmesh/pkg/jobstore"
	"github.com/jobmesh-project/jobmesh/pkg/models"
)

type BoltJobstoreTestSuite struct {
	suite.Suite
	store  *BoltJobStore
	dbFile string
	ctx    context.Context
}

func TestBoltJobstoreTestSuite(t *testing.T) {
	suite.Run(t, new(BoltJobstoreTestSuite))
}

func (s *BoltJobstoreTestSuite) SetupTest() {
	s.dbFile = filepath.Join(s.T().TempDir(), "jobstore.db")
	store, err := NewBoltJobStore(s.dbFile)
	s.Require().NoError(err)
	s.store = store
	s.ctx = context.Background()
}

func (s *BoltJobstoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close(s.ctx))
}

func (s *BoltJobstoreTestSuite) makeJob() models.JobRequest {
	req := models.JobRequest{
		Originator: "client-1",
		CodeRef:    "bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku",
		Resources:  models.Resources{CPU: 1, Memory: 1024},
		Timestamp:  time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(req.Normalize())
	s.Require().NoError(s.store.CreateJob(s.ctx, req))
	return req
}

func (s *BoltJobstoreTestSuite) TestLifecycleSurvivesReopen() {
	req := s.makeJob()
	s.Require().NoError(s.store.UpdateJobState(s.ctx, jobstore.UpdateJobStateRequest{
		JobID:    req.ID,
		NewState: models.JobStateBidding,
	}))

	bid := models.Bid{
		JobID:    req.ID,
		Bidder:   "node-1",
		Price:    50,
		Estimate: models.Resources{CPU: 2, Memory: 4096},
	}
	bid.Normalize()
	s.Require().NoError(s.store.CreateBid(s.ctx, bid))
	s.Require().NoError(s.store.AssignJob(s.ctx, req.ID, bid.ID))

	s.Require().NoError(s.store.Close(s.ctx))
	reopened, err := NewBoltJobStore(s.dbFile)
	s.Require().NoError(err)
	s.store = reopened

	job, err := s.store.GetJob(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStateAssigned, job.State.StateType)
	s.Equal("node-1", job.State.Worker)

	winner, err := s.store.GetWinningBid(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(bid.ID, winner.ID)
}

func (s *BoltJobstoreTestSuite) TestBidRejectedOutsideBidding() {
	req := s.makeJob()
	s.Require().NoError(s.store.UpdateJobState(s.ctx, jobstore.UpdateJobStateRequest{
		JobID:    req.ID,
		NewState: models.JobStateCancelled,
	}))

	bid := models.Bid{JobID: req.ID, Bidder: "node-1", Price: 1, Estimate: models.Resources{CPU: 1}}
	bid.Normalize()
	err := s.store.CreateBid(s.ctx, bid)
	s.ErrorAs(err, &jobstore.ErrInvalidJobState{})
}

func (s *BoltJobstoreTestSuite) TestSecondAssignmentLoses() {
	req := s.makeJob()
	s.Require().NoError(s.store.UpdateJobState(s.ctx, jobstore.UpdateJobStateRequest{
		JobID:    req.ID,
		NewState: models.JobStateBidding,
	}))

	var bids []models.Bid
	for _, bidder := range []string{"node-1", "node-2"} {
		bid := models.Bid{JobID: req.ID, Bidder: bidder, Price: 10, Estimate: models.Resources{CPU: 2, Memory: 4096}}
		bid.Normalize()
		s.Require().NoError(s.store.CreateBid(s.ctx, bid))
		bids = append(bids, bid)
	}

	s.Require().NoError(s.store.AssignJob(s.ctx, req.ID, bids[0].ID))
	err := s.store.AssignJob(s.ctx, req.ID, bids[1].ID)
	s.ErrorAs(err, &jobstore.ErrInvalidJobState{})
}

func (s *BoltJobstoreTestSuite) TestBidOrderPreserved() {
	req := s.makeJob()
	var ids []string
	for _, bidder := range []string{"node-1", "node-2", "node-3"} {
		bid := models.Bid{JobID: req.ID, Bidder: bidder, Price: 10, Estimate: models.Resources{CPU: 1, Memory: 2048}}
		bid.Normalize()
		s.Require().NoError(s.store.CreateBid(s.ctx, bid))
		ids = append(ids, bid.ID)
	}

	bids, err := s.store.GetBids(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Require().Len(bids, 3)
	for i := range bids {
		s.Equal(ids[i], bids[i].ID)
		s.Equal(uint64(i+1), bids[i].Sequence)
	}
}
