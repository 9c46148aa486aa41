package model

import "time"

// TriggerType indicates what started a run.
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerAPI       TriggerType = "API"
	TriggerScheduled TriggerType = "SCHEDULED"
	TriggerRescan    TriggerType = "RESCAN"
	TriggerChat      TriggerType = "CHAT"
)

// RunState is the lifecycle state of a run.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

// RunStatus describes one pipeline run, as reported to collaborators.
type RunStatus struct {
	ID          string      `json:"id"`
	Trigger     TriggerType `json:"trigger"`
	State       RunState    `json:"state"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Tickers     []string    `json:"tickers"`
	Found       []string    `json:"found,omitempty"`
	Missing     []string    `json:"missing,omitempty"`
	Window      int         `json:"window"`
	SourceURL   string      `json:"source_url"`
	RowsFetched int         `json:"rows_fetched"`
	RowsCleaned int         `json:"rows_cleaned"`
	OutputPath  string      `json:"output_path,omitempty"`
	ErrorKind   string      `json:"error_kind,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Done reports whether the run reached a terminal state.
func (s RunStatus) Done() bool {
	return s.State == RunSucceeded || s.State == RunFailed
}

// Partial reports whether the run completed with only some requested tickers.
func (s RunStatus) Partial() bool {
	return s.State == RunSucceeded && len(s.Missing) > 0
}
