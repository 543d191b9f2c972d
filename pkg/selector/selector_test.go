//go:build unit || !integration

package selector

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmesh-project/jobmesh/pkg/models"
	"github.com/jobmesh-project/jobmesh/pkg/reputation"
)

func testJob(t *testing.T, requiredMana uint64) models.JobRequest {
	t.Helper()
	req := models.JobRequest{
		Originator:   "client-1",
		CodeRef:      "bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku",
		Resources:    models.Resources{CPU: 1000, Memory: 1 << 20},
		RequiredMana: requiredMana,
		Timestamp:    time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, req.Normalize())
	return req
}

func testBid(jobID, bidder string, price uint64, cpu float64, seq uint64) models.Bid {
	return models.Bid{
		ID:       "bid-" + bidder,
		JobID:    jobID,
		Bidder:   bidder,
		Price:    price,
		Estimate: models.Resources{CPU: cpu, Memory: 1 << 21},
		Sequence: seq,
	}
}

func newTestSelector(directory reputation.Directory) (*Selector, *Metrics) {
	metrics := NewMetrics(prometheus.NewRegistry())
	s := NewSelector(SelectorParams{
		Directory: directory,
		Metrics:   metrics,
	})
	return s, metrics
}

func TestUnderResourcedBidNeverWins(t *testing.T) {
	directory := reputation.NewInMemoryDirectory()
	directory.SetProfile(reputation.Profile{NodeID: "cheap", TotalJobs: 100, SuccessfulJobs: 100, OnTimeJobs: 100})
	s, metrics := newTestSelector(directory)

	job := testJob(t, 0)
	// job requires CPU=1000, estimate CPU=500, price zero: still disqualified
	under := testBid(job.ID, "cheap", 0, 500, 1)
	over := testBid(job.ID, "pricey", 900, 2000, 2)

	winner, ranked, err := s.Select(context.Background(), job, []models.Bid{under, over})
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "pricey", winner.Bid.Bidder)

	require.Len(t, ranked, 2)
	assert.Equal(t, DisqualifiedScore, ranked[0].Score)
	assert.EqualValues(t, 1, testutil.ToFloat64(metrics.DisqualifiedResources))
}

func TestManaGatingPrecedesScoring(t *testing.T) {
	directory := reputation.NewInMemoryDirectory()
	// stellar reputation, no mana
	directory.SetProfile(reputation.Profile{
		NodeID:         "broke",
		TotalJobs:      500,
		SuccessfulJobs: 500,
		OnTimeJobs:     500,
		Mana:           &reputation.ManaState{Current: 10, Max: 1000},
	})
	// mediocre reputation, funded
	directory.SetProfile(reputation.Profile{
		NodeID:         "funded",
		TotalJobs:      10,
		SuccessfulJobs: 5,
		FailedJobs:     5,
		Mana:           &reputation.ManaState{Current: 500, Max: 1000},
	})
	s, metrics := newTestSelector(directory)

	job := testJob(t, 100)
	bids := []models.Bid{
		testBid(job.ID, "broke", 0, 2000, 1),
		testBid(job.ID, "funded", 500, 2000, 2),
	}

	winner, _, err := s.Select(context.Background(), job, bids)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "funded", winner.Bid.Bidder,
		"an underfunded bidder never wins regardless of price or reputation")
	assert.EqualValues(t, 1, testutil.ToFloat64(metrics.DisqualifiedMana),
		"the counter increments exactly once per mana disqualification")
}

func TestMissingManaStateDisqualifiesOnlyForManaGatedJobs(t *testing.T) {
	directory := reputation.NewInMemoryDirectory()
	directory.SetProfile(reputation.Profile{NodeID: "node-1", TotalJobs: 10, SuccessfulJobs: 10, OnTimeJobs: 10})
	s, _ := newTestSelector(directory)

	// no mana requirement: a profile with no mana sub-state is acceptable
	freeJob := testJob(t, 0)
	winner, _, err := s.Select(context.Background(), freeJob, []models.Bid{
		testBid(freeJob.ID, "node-1", 100, 2000, 1),
	})
	require.NoError(t, err)
	require.NotNil(t, winner)

	// with a mana requirement the same profile is disqualified
	gatedJob := testJob(t, 100)
	winner, _, err = s.Select(context.Background(), gatedJob, []models.Bid{
		testBid(gatedJob.ID, "node-1", 100, 2000, 1),
	})
	require.NoError(t, err)
	assert.Nil(t, winner)
}

func TestLowerPriceWinsAtEqualReputation(t *testing.T) {
	directory := reputation.NewInMemoryDirectory()
	for _, node := range []string{"node-a", "node-b"} {
		directory.SetProfile(reputation.Profile{
			NodeID: node, TotalJobs: 50, SuccessfulJobs: 45, FailedJobs: 5, OnTimeJobs: 40,
		})
	}
	s, _ := newTestSelector(directory)

	job := testJob(t, 0)
	bids := []models.Bid{
		testBid(job.ID, "node-a", 100, 2000, 1),
		testBid(job.ID, "node-b", 50, 2000, 2),
	}

	winner, _, err := s.Select(context.Background(), job, bids)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "node-b", winner.Bid.Bidder)
}

func TestSelectionIsDeterministic(t *testing.T) {
	directory := reputation.NewInMemoryDirectory()
	for _, node := range []string{"node-a", "node-b", "node-c"} {
		directory.SetProfile(reputation.Profile{NodeID: node, TotalJobs: 10, SuccessfulJobs: 10, OnTimeJobs: 5})
	}
	s, _ := newTestSelector(directory)

	job := testJob(t, 0)
	// identical price and estimate: submission order is the final tie-break
	bids := []models.Bid{
		testBid(job.ID, "node-b", 100, 2000, 2),
		testBid(job.ID, "node-c", 100, 2000, 3),
		testBid(job.ID, "node-a", 100, 2000, 1),
	}

	for i := 0; i < 10; i++ {
		winner, _, err := s.Select(context.Background(), job, bids)
		require.NoError(t, err)
		require.NotNil(t, winner)
		assert.Equal(t, "node-a", winner.Bid.Bidder, "earliest submission wins perfect ties")
	}
}

// failingDirectory errors for one specific node and delegates the rest.
type failingDirectory struct {
	*reputation.InMemoryDirectory
	failFor string
}

func (d *failingDirectory) GetProfile(ctx context.Context, nodeID string) (reputation.Profile, error) {
	if nodeID == d.failFor {
		return reputation.Profile{}, errors.New("directory timeout")
	}
	return d.InMemoryDirectory.GetProfile(ctx, nodeID)
}

func TestFetchFailureDisqualifiesOnlyThatBidder(t *testing.T) {
	inner := reputation.NewInMemoryDirectory()
	inner.SetProfile(reputation.Profile{NodeID: "healthy", TotalJobs: 10, SuccessfulJobs: 10, OnTimeJobs: 10})
	directory := &failingDirectory{InMemoryDirectory: inner, failFor: "flaky"}
	s, metrics := newTestSelector(directory)

	job := testJob(t, 0)
	bids := []models.Bid{
		testBid(job.ID, "flaky", 10, 2000, 1),
		testBid(job.ID, "healthy", 500, 2000, 2),
	}

	winner, ranked, err := s.Select(context.Background(), job, bids)
	require.NoError(t, err, "a per-bidder fetch failure must not abort evaluation")
	require.NotNil(t, winner)
	assert.Equal(t, "healthy", winner.Bid.Bidder)
	assert.True(t, ranked[0].Disqualified())
	assert.EqualValues(t, 1, testutil.ToFloat64(metrics.ReputationFetchFailures))
}

func TestAllBidsDisqualifiedYieldsNoWinner(t *testing.T) {
	directory := reputation.NewInMemoryDirectory()
	s, metrics := newTestSelector(directory)

	job := testJob(t, 0)
	winner, ranked, err := s.Select(context.Background(), job, []models.Bid{
		testBid(job.ID, "under-1", 0, 1, 1),
		testBid(job.ID, "under-2", 0, 10, 2),
	})
	require.NoError(t, err)
	assert.Nil(t, winner)
	assert.Len(t, ranked, 2)
	assert.EqualValues(t, 1, testutil.ToFloat64(metrics.NoEligibleBids))
}
