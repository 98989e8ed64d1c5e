package domain

import "time"

// SyncRun is the persisted outcome of one pipeline within one run.
// Rows sharing a RunID belong to the same invocation.
type SyncRun struct {
	ID          string    `json:"id"`
	RunID       string    `json:"runId"`
	Pipeline    string    `json:"pipeline"`
	Collection  string    `json:"collection"`
	Gate        string    `json:"gate"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	RowsRead    int       `json:"rowsRead"`
	RowsDropped int       `json:"rowsDropped"`
	RowsWritten int       `json:"rowsWritten"`
	Deleted     int64     `json:"deleted"`
	Error       string    `json:"error,omitempty"`
}

// SyncRunStore persists run history.
type SyncRunStore interface {
	CreateRunLog(run *SyncRun) error
	// ListRunLogs returns the newest runs first. An empty pipeline lists all.
	ListRunLogs(pipeline string, limit int) ([]SyncRun, error)
}
