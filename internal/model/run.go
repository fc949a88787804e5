package model

import "time"

// RunStatus is the lifecycle state of a recorded pipeline run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run records one invocation of a pipeline stage.
type Run struct {
	StartedAt  time.Time
	FinishedAt *time.Time
	ID         string
	Stage      string
	Status     RunStatus
	Message    string
	Rows       int
}
