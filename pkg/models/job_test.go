//go:build unit || !integration

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRequest(t *testing.T) JobRequest {
	t.Helper()
	req := JobRequest{
		Originator: "originator-node",
		CodeRef:    "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		Resources:  Resources{CPU: 1, Memory: 1024, Disk: 2048},
		Timestamp:  time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, req.Normalize())
	return req
}

func TestContentIDDeterminism(t *testing.T) {
	a := makeRequest(t)
	b := makeRequest(t)

	idA, err := a.ContentID()
	require.NoError(t, err)
	idB, err := b.ContentID()
	require.NoError(t, err)
	assert.Equal(t, idA, idB, "identical content must yield identical addresses")
}

func TestContentIDChangesWithContent(t *testing.T) {
	a := makeRequest(t)
	b := makeRequest(t)
	b.Resources.CPU = 2

	idA, err := a.ContentID()
	require.NoError(t, err)
	idB, err := b.ContentID()
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB, "different content must yield different addresses")
}

func TestContentIDExcludesOwnID(t *testing.T) {
	a := makeRequest(t)
	withID := a
	require.NoError(t, withID.Normalize())

	idA, err := a.ContentID()
	require.NoError(t, err)
	idWith, err := withID.ContentID()
	require.NoError(t, err)
	assert.Equal(t, idA, idWith, "the ID field must not be part of the hashed content")
}

func TestValidateRejectsTamperedID(t *testing.T) {
	a := makeRequest(t)
	require.NoError(t, a.Validate())

	a.Resources.Memory++
	assert.Error(t, a.Validate(), "mutated content must no longer match the ID")
}

func TestJobStateTransitions(t *testing.T) {
	assert.True(t, JobStatePending.CanTransitionTo(JobStateBidding))
	assert.True(t, JobStateBidding.CanTransitionTo(JobStateAssigned))
	assert.True(t, JobStateBidding.CanTransitionTo(JobStateBiddingExpired))
	assert.True(t, JobStateAssigned.CanTransitionTo(JobStateRunning))
	assert.True(t, JobStateRunning.CanTransitionTo(JobStateCompleted))
	assert.True(t, JobStateRunning.CanTransitionTo(JobStateFailed))

	// a receipt can overtake the running report, so Assigned may close directly
	assert.True(t, JobStateAssigned.CanTransitionTo(JobStateCompleted))
	assert.True(t, JobStateAssigned.CanTransitionTo(JobStateFailed))

	// no going back
	assert.False(t, JobStateBidding.CanTransitionTo(JobStatePending))
	assert.False(t, JobStateAssigned.CanTransitionTo(JobStateBidding))
	assert.False(t, JobStateRunning.CanTransitionTo(JobStateAssigned))
	assert.False(t, JobStateCompleted.CanTransitionTo(JobStateRunning))

	// cancellation from any non-terminal state
	for _, s := range []JobStateType{JobStatePending, JobStateBidding, JobStateAssigned, JobStateRunning} {
		assert.True(t, s.CanTransitionTo(JobStateCancelled), s.String())
	}
	for _, s := range []JobStateType{JobStateCompleted, JobStateFailed, JobStateCancelled, JobStateBiddingExpired} {
		assert.True(t, s.IsTerminal(), s.String())
		assert.False(t, s.CanTransitionTo(JobStateCancelled), s.String())
	}
}

func TestAcceptsBids(t *testing.T) {
	assert.True(t, JobStatePending.AcceptsBids())
	assert.True(t, JobStateBidding.AcceptsBids())
	assert.False(t, JobStateAssigned.AcceptsBids())
	assert.False(t, JobStateRunning.AcceptsBids())
	assert.False(t, JobStateBiddingExpired.AcceptsBids())
}

func TestJobStateTypeRoundTripsThroughText(t *testing.T) {
	for typ, name := range jobStateNames {
		if typ == JobStateUndefined {
			continue
		}
		parsed, ok := ParseJobStateType(name)
		require.True(t, ok, name)
		assert.Equal(t, typ, parsed)
	}
	_, ok := ParseJobStateType("NotAState")
	assert.False(t, ok)
}
