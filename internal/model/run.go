package model

import "time"

// RunStatus represents the current state of a reconciliation run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusFetching    RunStatus = "fetching"
	RunStatusReconciling RunStatus = "reconciling"
	RunStatusPersisting  RunStatus = "persisting"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// RunRequest scopes a run to a set of states and fiscal years.
type RunRequest struct {
	States []string `json:"states"`
	Years  []int    `json:"years"`
}

// Run represents a single reconciliation run.
type Run struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	Request   RunRequest `json:"request"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Declarations     int            `json:"declarations"`
	Summaries        int            `json:"summaries"`
	LineItems        int            `json:"line_items"`
	JoinDropped      int            `json:"join_dropped"`
	OrphanGroups     int            `json:"orphan_groups"`
	UndeclaredGroups int            `json:"undeclared_groups"`
	Records          int            `json:"records"`
	Persisted        int64          `json:"persisted"`
	DurationMs       int64          `json:"duration_ms"`
	Details          map[string]any `json:"details,omitempty"`
	Error            string         `json:"error,omitempty"`
}
