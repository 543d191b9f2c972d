//go:build unit || !integration

package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyKeepsJobCountsConsistent(t *testing.T) {
	p := Profile{NodeID: "node-1"}

	events := []UpdateEvent{
		{Kind: JobCompletedSuccessfully, NodeID: "node-1", OnTime: true, ExecutionMS: 100, BidAccuracy: 0.9},
		{Kind: JobCompletedSuccessfully, NodeID: "node-1", OnTime: false, ExecutionMS: 300, BidAccuracy: 0.7},
		{Kind: JobFailed, NodeID: "node-1"},
		{Kind: JobCompletedSuccessfully, NodeID: "node-1", OnTime: true, ExecutionMS: 200, BidAccuracy: 0.8},
	}
	for _, e := range events {
		p.Apply(e)
		assert.Equal(t, p.TotalJobs, p.SuccessfulJobs+p.FailedJobs,
			"total must always equal successful + failed")
	}

	assert.EqualValues(t, 4, p.TotalJobs)
	assert.EqualValues(t, 3, p.SuccessfulJobs)
	assert.EqualValues(t, 1, p.FailedJobs)
	assert.EqualValues(t, 2, p.OnTimeJobs)
	assert.EqualValues(t, 1, p.LateJobs)
	assert.InDelta(t, 200, p.AvgExecutionMS, 0.001)
	assert.InDelta(t, 0.8, p.AvgBidAccuracy, 0.001)
}

func TestComputeScoreIsPure(t *testing.T) {
	p := Profile{
		NodeID:         "node-1",
		TotalJobs:      10,
		SuccessfulJobs: 8,
		FailedJobs:     2,
		OnTimeJobs:     6,
		LateJobs:       2,
	}
	first := p.ComputeScore()
	second := p.ComputeScore()
	assert.Equal(t, first, second)

	p.Apply(UpdateEvent{Kind: JobCompletedSuccessfully, OnTime: true})
	assert.Equal(t, p.ComputedScore, p.ComputeScore(),
		"stored score must equal recomputation after every event")
}

func TestScoreBounds(t *testing.T) {
	empty := Profile{}
	assert.InDelta(t, 50, empty.ComputeScore(), 0.001, "unknown node gets neutral standing")

	perfect := Profile{
		TotalJobs:      100,
		SuccessfulJobs: 100,
		OnTimeJobs:     100,
		Endorsements:   []string{"a", "b", "c", "d", "e", "f", "g"},
		Stake:          1_000_000,
	}
	assert.LessOrEqual(t, perfect.ComputeScore(), 100.0)

	liar := Profile{
		TotalJobs:        10,
		SuccessfulJobs:   10,
		OnTimeJobs:       10,
		DishonestyEvents: 50,
	}
	assert.GreaterOrEqual(t, liar.ComputeScore(), 0.0)
	assert.Zero(t, liar.ComputeScore())
}

func TestDishonestyHurts(t *testing.T) {
	honest := Profile{TotalJobs: 10, SuccessfulJobs: 9, FailedJobs: 1, OnTimeJobs: 9}
	dishonest := honest
	dishonest.DishonestyEvents = 1
	assert.Greater(t, honest.ComputeScore(), dishonest.ComputeScore())
}

func TestEndorsementsAreDeduplicated(t *testing.T) {
	p := Profile{NodeID: "node-1"}
	p.Apply(UpdateEvent{Kind: Endorsed, Endorser: "peer-a"})
	p.Apply(UpdateEvent{Kind: Endorsed, Endorser: "peer-a"})
	p.Apply(UpdateEvent{Kind: Endorsed, Endorser: "peer-b"})
	assert.Len(t, p.Endorsements, 2)
}
