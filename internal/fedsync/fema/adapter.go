package fema

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sells-group/disaster-recon/internal/fedsync"
	"github.com/sells-group/disaster-recon/internal/fedsync/crosswalk"
	"github.com/sells-group/disaster-recon/internal/fedsync/reconcile"
	"github.com/sells-group/disaster-recon/internal/model"
	"github.com/sells-group/disaster-recon/internal/observability"
	"go.uber.org/zap"
)

// AdapterName identifies OpenFEMA runs in the run history.
const AdapterName = "openfema"

// Adapter reconciles OpenFEMA declarations, financial summaries, and mission
// assignments into county records.
type Adapter struct {
	orch      *Orchestrator
	crosswalk *crosswalk.Crosswalk
	metrics   *observability.Metrics
}

var _ fedsync.Adapter = (*Adapter)(nil)

// NewAdapter creates an Adapter. A nil m discards metrics.
func NewAdapter(orch *Orchestrator, cw *crosswalk.Crosswalk, m *observability.Metrics) *Adapter {
	if m == nil {
		m = observability.Discard()
	}
	return &Adapter{orch: orch, crosswalk: cw, metrics: m}
}

// Name implements fedsync.Adapter.
func (a *Adapter) Name() string { return AdapterName }

// Fetch runs the staged fetch for req.
func (a *Adapter) Fetch(ctx context.Context, req model.RunRequest) (fedsync.Raw, error) {
	raw, err := a.orch.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Clean joins line items to counties, aggregates them per county and
// disaster, and merges the result with declarations and summaries.
func (a *Adapter) Clean(ctx context.Context, raw fedsync.Raw) (*fedsync.Result, error) {
	data, ok := raw.(*RawData)
	if !ok {
		return nil, eris.Errorf("fema: clean: unexpected raw data %T", raw)
	}
	if a.crosswalk == nil {
		return nil, eris.New("fema: clean: no crosswalk loaded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, js := a.crosswalk.Join(data.LineItems)
	a.metrics.JoinDropped.Add(float64(js.Dropped))

	groups := reconcile.Aggregate(items)
	records, ms := reconcile.Merge(data.Declarations, data.Summaries, groups)
	a.metrics.OrphanGroups.Add(float64(ms.OrphanGroups))
	a.metrics.UndeclaredGroups.Add(float64(ms.UndeclaredGroups))
	a.metrics.RecordsReconciled.Add(float64(len(records)))

	zap.L().Info("fema: reconciled",
		zap.Int("keys", data.Keys.Len()),
		zap.Int("line_items_matched", js.Matched),
		zap.Int("county_groups", len(groups)),
		zap.Int("records", ms.Records),
		zap.Int("missing_summaries", ms.MissingSummaries),
	)

	return &fedsync.Result{
		Records: records,
		Stats: fedsync.Stats{
			Declarations:     len(data.Declarations),
			Summaries:        len(data.Summaries),
			LineItems:        len(data.LineItems),
			JoinDropped:      js.Dropped,
			OrphanGroups:     ms.OrphanGroups,
			UndeclaredGroups: ms.UndeclaredGroups,
		},
		Metadata: map[string]any{
			"disasters":             data.Keys.Len(),
			"county_groups":         len(groups),
			"declared_counties":     ms.DeclaredCounties,
			"missing_summaries":     ms.MissingSummaries,
			"orphan_line_items":     ms.OrphanLineItems,
			"undeclared_line_items": ms.UndeclaredLineItems,
			"invalid_declarations":  ms.InvalidDeclarations,
			"dropped_zips":          js.DroppedZIPs,
		},
	}, nil
}
