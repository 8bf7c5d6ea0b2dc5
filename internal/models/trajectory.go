package models

import (
	"time"

	"github.com/google/uuid"
)

// Action identifies the transition taken at the end of a stage.
type Action string

const (
	ActionContinue   Action = "continue"
	ActionStop       Action = "stop"
	ActionForcedStop Action = "forced_stop" // sampling cap reached
)

// ArmDraw records the outcomes one arm consumed during a stage.
type ArmDraw struct {
	Arm       int `json:"arm"`
	N         int `json:"n"`
	Successes int `json:"successes"`
}

// ContinuationRecord is the best continuation action found at one interim
// analysis: the arm subset to keep sampling, the patients the next batch
// costs, and the expected loss reduction per patient it buys.
type ContinuationRecord struct {
	Arms      []int   `json:"arms"`
	Patients  int     `json:"patients"`
	Reduction float64 `json:"reduction"`
}

// StageRecord is one entry of a trial's replay log. Records are immutable
// once appended; the reevaluator reads them concurrently.
type StageRecord struct {
	Stage        int                 `json:"stage"`
	Active       []int               `json:"active"` // active arms entering the stage
	Draws        []ArmDraw           `json:"draws"`
	StopDecision Decision            `json:"stop_decision"`
	StopLoss     float64             `json:"stop_loss"`
	Best         *ContinuationRecord `json:"best,omitempty"` // nil when no further sampling was possible
	Action       Action              `json:"action"`
	Gamma        float64             `json:"gamma"`
}

// Trajectory is the replay log of one simulated trial under one threshold.
type Trajectory struct {
	DatasetID uuid.UUID     `json:"dataset_id"`
	Trial     int           `json:"trial"`
	Gamma     float64       `json:"gamma"`
	Stages    []StageRecord `json:"stages"`
	Final     Decision      `json:"final"`
	Patients  int           `json:"patients"` // total across arms
}

// TrialOutcome is the terminal result of one replicate.
type TrialOutcome struct {
	Trial    int         `json:"trial"`
	Decision Decision    `json:"decision"`
	Patients int         `json:"patients"`
	Error    *TrialError `json:"error,omitempty"`
}

type TrialError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// DecisionStat is one entry of the decision-probability vector.
type DecisionStat struct {
	Label       string  `json:"label"`
	Count       int     `json:"count"`
	Probability float64 `json:"probability"`
}

// Summary is the aggregate over all replicates at one threshold.
type Summary struct {
	Gamma        float64        `json:"gamma"`
	Decisions    []DecisionStat `json:"decisions"`
	SampleSizes  []int          `json:"sample_sizes"`
	MeanPatients float64        `json:"mean_patients"`
	Trials       int            `json:"trials"` // replicates contributing to the vector
	FailedTrials int            `json:"failed_trials"`
}

// RunResult is the full output of a scenario run.
type RunResult struct {
	ScenarioName     string    `json:"scenario_name"`
	DatasetID        uuid.UUID `json:"dataset_id"`
	Replicates       int       `json:"replicates"`
	Cancelled        bool      `json:"cancelled"`
	SkippedTrials    int       `json:"skipped_trials"`
	Summaries        []Summary `json:"summaries"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	TotalDurationSec float64   `json:"total_duration_sec"`
}
