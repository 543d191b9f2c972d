package jobstore

import (
	"fmt"
	"strings"

	"github.com/jobmesh-project/jobmesh/pkg/models"
)

// ErrJobNotFound is returned when the job is not found
type ErrJobNotFound struct {
	JobID string
}

func NewErrJobNotFound(id string) ErrJobNotFound {
	return ErrJobNotFound{JobID: id}
}

func (e ErrJobNotFound) Error() string {
	return "job not found: " + e.JobID
}

// ErrJobAlreadyExists is returned when a job already exists
type ErrJobAlreadyExists struct {
	JobID string
}

func NewErrJobAlreadyExists(id string) ErrJobAlreadyExists {
	return ErrJobAlreadyExists{JobID: id}
}

func (e ErrJobAlreadyExists) Error() string {
	return "job already exists: " + e.JobID
}

// ErrBidNotFound is returned when a bid is not found
type ErrBidNotFound struct {
	BidID string
}

func NewErrBidNotFound(id string) ErrBidNotFound {
	return ErrBidNotFound{BidID: id}
}

func (e ErrBidNotFound) Error() string {
	return "bid not found: " + e.BidID
}

// ErrBidAlreadyExists is returned when a bid with the same ID was already
// recorded
type ErrBidAlreadyExists struct {
	BidID string
}

func NewErrBidAlreadyExists(id string) ErrBidAlreadyExists {
	return ErrBidAlreadyExists{BidID: id}
}

func (e ErrBidAlreadyExists) Error() string {
	return "bid already exists: " + e.BidID
}

// ErrInvalidJobState is returned when a job is in a state that doesn't allow
// the requested operation: a bid against a job past bidding, an assignment
// losing a race, or a transition the state machine forbids.
type ErrInvalidJobState struct {
	JobID    string
	Actual   models.JobStateType
	Expected []models.JobStateType
}

func NewErrInvalidJobState(id string, actual models.JobStateType, expected ...models.JobStateType) ErrInvalidJobState {
	return ErrInvalidJobState{JobID: id, Actual: actual, Expected: expected}
}

func (e ErrInvalidJobState) Error() string {
	if len(e.Expected) == 0 {
		return "job " + e.JobID + " is in unexpected state " + e.Actual.String()
	}
	names := make([]string, 0, len(e.Expected))
	for _, s := range e.Expected {
		names = append(names, s.String())
	}
	return fmt.Sprintf("job %s is in state %s but expected one of [%s]",
		e.JobID, e.Actual, strings.Join(names, ", "))
}

// ErrJobAlreadyTerminal is returned when a job is already in a terminal
// state and cannot be updated.
type ErrJobAlreadyTerminal struct {
	JobID    string
	Actual   models.JobStateType
	NewState models.JobStateType
}

func NewErrJobAlreadyTerminal(id string, actual, newState models.JobStateType) ErrJobAlreadyTerminal {
	return ErrJobAlreadyTerminal{JobID: id, Actual: actual, NewState: newState}
}

func (e ErrJobAlreadyTerminal) Error() string {
	return fmt.Sprintf("job %s is in terminal state %s and cannot transition to %s",
		e.JobID, e.Actual, e.NewState)
}

// ErrNoWinningBid is returned when no winning bid has been recorded for the
// job.
type ErrNoWinningBid struct {
	JobID string
}

func NewErrNoWinningBid(id string) ErrNoWinningBid {
	return ErrNoWinningBid{JobID: id}
}

func (e ErrNoWinningBid) Error() string {
	return "no winning bid recorded for job: " + e.JobID
}
