// Package fedsync runs federal dataset adapters end to end: fetch, clean,
// optional persistence into Postgres, and a recorded run history.
package fedsync

import (
	"context"

	"github.com/sells-group/disaster-recon/internal/fedsync/reconcile"
	"github.com/sells-group/disaster-recon/internal/model"
)

// Raw is whatever an adapter fetched, before cleaning.
type Raw interface {
	// Counts returns rows fetched per dataset name.
	Counts() map[string]int
}

// Adapter turns a remote source into reconciled county records.
type Adapter interface {
	// Name identifies the adapter in run history and logs.
	Name() string
	// Fetch retrieves everything the request scopes.
	Fetch(ctx context.Context, req model.RunRequest) (Raw, error)
	// Clean reconciles fetched data into records.
	Clean(ctx context.Context, raw Raw) (*Result, error)
}

// Stats counts what flowed through a run.
type Stats struct {
	Declarations int `json:"declarations"`
	Summaries    int `json:"summaries"`
	LineItems    int `json:"line_items"`
	JoinDropped  int `json:"join_dropped"`
	OrphanGroups int `json:"orphan_groups"`
	// UndeclaredGroups counts line-item groups in counties their disaster
	// did not declare.
	UndeclaredGroups int `json:"undeclared_groups"`
}

// Result is the cleaned output of an adapter.
type Result struct {
	Records []reconcile.Record
	Stats   Stats
	// Metadata carries adapter-specific detail into the run result.
	Metadata map[string]any
}
