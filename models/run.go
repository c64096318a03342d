package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun is one cycle as recorded in the operational store.
type ScrapeRun struct {
	ID          int64      `json:"id" db:"id"`
	CycleID     uuid.UUID  `json:"cycle_id" db:"cycle_id"`
	Trigger     string     `json:"trigger" db:"trigger"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time `json:"finished_at" db:"finished_at"`
	Status      RunStatus  `json:"status" db:"status"`
	KindsOK     int        `json:"kinds_ok" db:"kinds_ok"`
	KindsFailed int        `json:"kinds_failed" db:"kinds_failed"`
	Error       string     `json:"error,omitempty" db:"error"`
}

type KindStats struct {
	Kind            DataKind   `json:"kind" db:"kind"`
	LastSuccessAt   *time.Time `json:"last_success_at" db:"last_success_at"`
	LastStatus      string     `json:"last_status" db:"last_status"`
	Seasons         int        `json:"seasons" db:"seasons"`
	Fingerprint     string     `json:"fingerprint" db:"fingerprint"`
	ConsecutiveFail int        `json:"consecutive_failures" db:"consecutive_failures"`
}

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome is the result of scraping and persisting a single data kind.
type Outcome struct {
	Kind        DataKind      `json:"kind"`
	Status      OutcomeStatus `json:"status"`
	Seasons     int           `json:"seasons"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Unchanged   bool          `json:"unchanged,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// CycleReport aggregates the outcomes of one orchestrator run.
type CycleReport struct {
	ID         uuid.UUID            `json:"id"`
	Trigger    string               `json:"trigger"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Outcomes   map[DataKind]Outcome `json:"outcomes"`
}

func NewCycleReport(trigger string) *CycleReport {
	return &CycleReport{
		ID:        uuid.New(),
		Trigger:   trigger,
		StartedAt: time.Now(),
		Outcomes:  make(map[DataKind]Outcome),
	}
}

func (r *CycleReport) Succeeded() []DataKind {
	return r.kindsWith(OutcomeSuccess)
}

func (r *CycleReport) Failed() []DataKind {
	return r.kindsWith(OutcomeFailed)
}

// Success is true when every attempted kind was persisted.
func (r *CycleReport) Success() bool {
	return len(r.Failed()) == 0
}

func (r *CycleReport) Status() RunStatus {
	failed := len(r.Failed())
	switch {
	case failed == 0:
		return RunStatusCompleted
	case failed < len(r.Outcomes):
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}

func (r *CycleReport) kindsWith(status OutcomeStatus) []DataKind {
	var kinds []DataKind
	for _, k := range AllKinds {
		if o, ok := r.Outcomes[k]; ok && o.Status == status {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
