package reputation

import (
	"time"

	"golang.org/x/exp/slices"
)

// ManaState is the directory's view of an executor's regenerating credit,
// used by the selector for mana gating. Absent when the directory knows
// nothing about the executor's ledger.
type ManaState struct {
	Current uint64 `json:"Current"`
	Max     uint64 `json:"Max"`
}

// Profile is the per-executor reputation aggregate. It is mutated only by
// applying one UpdateEvent at a time, and ComputedScore is always a pure
// function of the other fields.
type Profile struct {
	NodeID string `json:"NodeID"`

	TotalJobs      uint64 `json:"TotalJobs"`
	SuccessfulJobs uint64 `json:"SuccessfulJobs"`
	FailedJobs     uint64 `json:"FailedJobs"`
	OnTimeJobs     uint64 `json:"OnTimeJobs"`
	LateJobs       uint64 `json:"LateJobs"`

	// AvgExecutionMS is a running average over successful jobs.
	AvgExecutionMS float64 `json:"AvgExecutionMS"`
	// AvgBidAccuracy is a running average of how close the node's resource
	// estimates were to actual usage, in [0, 1].
	AvgBidAccuracy float64 `json:"AvgBidAccuracy"`

	DishonestyEvents uint64   `json:"DishonestyEvents"`
	Endorsements     []string `json:"Endorsements,omitempty"`
	Stake            uint64   `json:"Stake"`

	ComputedScore float64 `json:"ComputedScore"`

	// Mana is the sub-state the selector gates on; nil when unknown.
	Mana *ManaState `json:"Mana,omitempty"`

	// LastAnchor is the content address of the most recent receipt that
	// affected this profile, when anchoring succeeded.
	LastAnchor string `json:"LastAnchor,omitempty"`
}

// EventKind enumerates reputation-affecting events.
type EventKind int

const (
	EventUndefined EventKind = iota
	JobCompletedSuccessfully
	JobFailed
	DishonestyReported
	Endorsed
)

var eventKindNames = map[EventKind]string{
	EventUndefined:           "Undefined",
	JobCompletedSuccessfully: "JobCompletedSuccessfully",
	JobFailed:                "JobFailed",
	DishonestyReported:       "DishonestyReported",
	Endorsed:                 "Endorsed",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "Undefined"
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	name := string(text)
	for kind, kindName := range eventKindNames {
		if kindName == name {
			*k = kind
			return nil
		}
	}
	*k = EventUndefined
	return nil
}

// UpdateEvent is one reputation-affecting record submitted against a
// profile.
type UpdateEvent struct {
	Kind   EventKind `json:"Kind"`
	NodeID string    `json:"NodeID"`

	// ExecutionMS is how long the job ran, for completed jobs.
	ExecutionMS uint64 `json:"ExecutionMS,omitempty"`
	// BidAccuracy is how close the estimate was to actual usage, in [0, 1].
	BidAccuracy float64 `json:"BidAccuracy,omitempty"`
	// OnTime marks whether a completed job beat its deadline.
	OnTime bool `json:"OnTime,omitempty"`
	// Endorser identifies who vouched, for Endorsed events.
	Endorser string `json:"Endorser,omitempty"`
	// Anchor is the receipt's content address when anchoring succeeded.
	Anchor string `json:"Anchor,omitempty"`

	Timestamp time.Time `json:"Timestamp"`
}

// Apply folds one event into the profile and recomputes the derived score.
// This is the only way profiles change.
func (p *Profile) Apply(event UpdateEvent) {
	switch event.Kind {
	case JobCompletedSuccessfully:
		p.TotalJobs++
		p.SuccessfulJobs++
		if event.OnTime {
			p.OnTimeJobs++
		} else {
			p.LateJobs++
		}
		n := float64(p.SuccessfulJobs)
		p.AvgExecutionMS += (float64(event.ExecutionMS) - p.AvgExecutionMS) / n
		p.AvgBidAccuracy += (event.BidAccuracy - p.AvgBidAccuracy) / n
	case JobFailed:
		p.TotalJobs++
		p.FailedJobs++
	case DishonestyReported:
		p.DishonestyEvents++
	case Endorsed:
		if event.Endorser != "" && !slices.Contains(p.Endorsements, event.Endorser) {
			p.Endorsements = append(p.Endorsements, event.Endorser)
		}
	}
	if event.Anchor != "" {
		p.LastAnchor = event.Anchor
	}
	p.ComputedScore = p.ComputeScore()
}

// ComputeScore derives the 0-100 standing from the raw aggregates. Pure.
func (p Profile) ComputeScore() float64 {
	var score float64
	if p.TotalJobs == 0 {
		// unknown node: neutral standing
		score = 50
	} else {
		successRatio := float64(p.SuccessfulJobs) / float64(p.TotalJobs)
		score = successRatio * 70

		if p.SuccessfulJobs > 0 {
			score += float64(p.OnTimeJobs) / float64(p.SuccessfulJobs) * 20
		} else {
			score += 10
		}
	}

	endorsementBonus := float64(len(p.Endorsements))
	if endorsementBonus > 5 {
		endorsementBonus = 5
	}
	score += endorsementBonus

	stakeBonus := float64(p.Stake) / 1000 //nolint:gomnd
	if stakeBonus > 5 {
		stakeBonus = 5
	}
	score += stakeBonus

	score -= float64(p.DishonestyEvents) * 15

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
