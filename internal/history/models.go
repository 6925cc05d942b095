package history

import (
	"time"

	"studypair/internal/joblog"
)

// RunStatus is the lifecycle state of a batch run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is one batch execution.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       RunStatus
	Inputs       []string
	RuleFile     string
	Workflow     string
	RecordCount  int
	PairCount    int
	Processed    int
	Skipped      int
	ErrorKind    string
	ErrorMessage string
}

// Duration returns how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome closes a run.
type Outcome struct {
	Status    RunStatus
	Processed int
	Skipped   int
	Err       error
}

// Decision is one dispatcher decision recorded against a run.
type Decision struct {
	RunID              string
	Index              int
	Status             joblog.Status
	PatientName        string
	PatientID          string
	AccessionNumber    string
	StudyUID           string
	PrimarySeriesUID   string
	SecondarySeriesUID string
	PrimaryFolder      string
	SecondaryFolder    string
	DecidedAt          time.Time
}
