package domain

import "time"

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusDropped   RunStatus = "dropped"
	RunStatusFailed    RunStatus = "failed"
)

// CityJob is the queue payload requesting one city build.
type CityJob struct {
	RunID       string    `json:"run_id"`
	City        string    `json:"city"`
	Vintage     string    `json:"vintage,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

type CityRun struct {
	RunID      string                   `json:"run_id"`
	City       string                   `json:"city"`
	Status     RunStatus                `json:"status"`
	Vintage    time.Time                `json:"vintage"`
	Datasets   []string                 `json:"datasets"`
	Ledgers    map[string]FailureLedger `json:"ledgers,omitempty"`
	Error      string                   `json:"error,omitempty"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
}
