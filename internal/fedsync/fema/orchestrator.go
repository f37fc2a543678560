package fema

import (
	"context"
	"slices"

	"github.com/sells-group/disaster-recon/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultKeyBatchSize bounds the disaster numbers in one dependent filter.
const DefaultKeyBatchSize = 100

// Primary is the result of the first stage: declarations and their key set.
type Primary struct {
	Declarations []model.Declaration
	Keys         model.KeySet
}

// Dependents is the result of the second stage.
type Dependents struct {
	Summaries []model.FinancialSummary
	LineItems []model.MissionAssignment
}

// RawData is everything fetched for one run, ready for reconciliation.
type RawData struct {
	Declarations []model.Declaration
	Summaries    []model.FinancialSummary
	LineItems    []model.MissionAssignment
	Keys         model.KeySet
}

// Counts returns the number of rows fetched per dataset.
func (r *RawData) Counts() map[string]int {
	return map[string]int{
		DisasterDeclarations.Name: len(r.Declarations),
		WebDisasterSummaries.Name: len(r.Summaries),
		MissionAssignments.Name:   len(r.LineItems),
	}
}

// Orchestrator runs the staged fetch: declarations first, then the two
// dependent datasets gated on the declarations' disaster numbers.
type Orchestrator struct {
	pager        *Paginator
	keyBatchSize int
}

// NewOrchestrator creates an Orchestrator. keyBatchSize <= 0 uses the default.
func NewOrchestrator(pager *Paginator, keyBatchSize int) *Orchestrator {
	if keyBatchSize <= 0 {
		keyBatchSize = DefaultKeyBatchSize
	}
	return &Orchestrator{pager: pager, keyBatchSize: keyBatchSize}
}

// FetchPrimary fetches the declarations for req and extracts their key set.
func (o *Orchestrator) FetchPrimary(ctx context.Context, req model.RunRequest) (*Primary, error) {
	q := Query{Dataset: DisasterDeclarations, Filter: StateYearFilter(req.States, req.Years)}
	if q.Filter.MatchesNothing() {
		zap.L().Warn("fema: request matches no declarations",
			zap.Strings("states", req.States),
			zap.Ints("years", req.Years),
		)
	}

	decls, err := FetchAll[model.Declaration](ctx, o.pager, q)
	if err != nil {
		return nil, err
	}

	return &Primary{Declarations: decls, Keys: model.KeysOf(decls)}, nil
}

// FetchDependents fetches financial summaries and mission assignments for the
// primary's disaster numbers concurrently. An empty key set issues no requests.
func (o *Orchestrator) FetchDependents(ctx context.Context, primary *Primary) (*Dependents, error) {
	deps := &Dependents{
		Summaries: []model.FinancialSummary{},
		LineItems: []model.MissionAssignment{},
	}
	if primary.Keys.Len() == 0 {
		return deps, nil
	}

	chunks := primary.Keys.Chunks(o.keyBatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := fetchByKeys[model.FinancialSummary](gctx, o.pager, WebDisasterSummaries, chunks)
		if err != nil {
			return err
		}
		deps.Summaries = rows
		return nil
	})
	g.Go(func() error {
		rows, err := fetchByKeys[model.MissionAssignment](gctx, o.pager, MissionAssignments, chunks)
		if err != nil {
			return err
		}
		deps.LineItems = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return deps, nil
}

// Run executes both stages in order.
func (o *Orchestrator) Run(ctx context.Context, req model.RunRequest) (*RawData, error) {
	primary, err := o.FetchPrimary(ctx, req)
	if err != nil {
		return nil, err
	}

	deps, err := o.FetchDependents(ctx, primary)
	if err != nil {
		return nil, err
	}

	return &RawData{
		Declarations: primary.Declarations,
		Summaries:    deps.Summaries,
		LineItems:    deps.LineItems,
		Keys:         primary.Keys,
	}, nil
}

// fetchByKeys fetches ds once per key chunk, sequentially, and concatenates
// the results in chunk order.
func fetchByKeys[T any](ctx context.Context, p *Paginator, ds Dataset, chunks [][]model.DisasterNumber) ([]T, error) {
	var parts [][]T
	for _, chunk := range chunks {
		rows, err := FetchAll[T](ctx, p, Query{Dataset: ds, Filter: KeyFilter(chunk)})
		if err != nil {
			return nil, err
		}
		parts = append(parts, rows)
	}
	return slices.Concat(parts...), nil
}
