package fedsync

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/sells-group/disaster-recon/internal/fedsync/reconcile"
	"github.com/sells-group/disaster-recon/internal/model"
	"github.com/sells-group/disaster-recon/internal/observability"
	"go.uber.org/zap"
)

// RunLog records the lifecycle of runs. store.Store satisfies it.
type RunLog interface {
	CreateRun(ctx context.Context, source string, req model.RunRequest) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
}

// Engine drives an adapter through fetch, clean, and optional persistence,
// recording each transition in the run log.
type Engine struct {
	runs    RunLog
	sink    Sink
	metrics *observability.Metrics
	clock   clockwork.Clock
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSink persists records after cleaning.
func WithSink(s Sink) EngineOption {
	return func(e *Engine) { e.sink = s }
}

// WithMetrics records run outcomes in m.
func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces the wall clock used for run durations.
func WithClock(c clockwork.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// NewEngine creates a new run engine.
func NewEngine(runs RunLog, opts ...EngineOption) *Engine {
	e := &Engine{runs: runs}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = observability.Discard()
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	return e
}

// Output is what a finished run produced.
type Output struct {
	Run     *model.Run
	Records []reconcile.Record
}

// Run executes one adapter run for req. On failure the run is marked failed
// and the adapter's error is returned unchanged alongside the failed run.
func (e *Engine) Run(ctx context.Context, a Adapter, req model.RunRequest) (*Output, error) {
	log := zap.L().With(zap.String("component", "fedsync.engine"), zap.String("source", a.Name()))

	run, err := e.runs.CreateRun(ctx, a.Name(), req)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: create run for %s", a.Name())
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("run started", zap.Strings("states", req.States), zap.Ints("years", req.Years))

	start := e.clock.Now()
	result := &model.RunResult{}

	fail := func(err error) (*Output, error) {
		result.Error = err.Error()
		result.DurationMs = e.clock.Since(start).Milliseconds()
		log.Error("run failed", zap.Error(err), zap.Int64("duration_ms", result.DurationMs))

		// Record the failure even when ctx was cancelled.
		bg := context.WithoutCancel(ctx)
		if logErr := e.runs.UpdateRunResult(bg, run.ID, result); logErr != nil {
			log.Error("failed to record run result", zap.Error(logErr))
		}
		if logErr := e.runs.UpdateRunStatus(bg, run.ID, model.RunStatusFailed); logErr != nil {
			log.Error("failed to record run failure", zap.Error(logErr))
		}
		run.Status = model.RunStatusFailed
		run.Result = result

		e.metrics.Runs.WithLabelValues(string(model.RunStatusFailed)).Inc()
		e.metrics.RunDuration.Observe(e.clock.Since(start).Seconds())
		return &Output{Run: run}, err
	}

	if err := e.transition(ctx, run, model.RunStatusFetching); err != nil {
		return fail(err)
	}
	raw, err := a.Fetch(ctx, req)
	if err != nil {
		return fail(err)
	}
	log.Info("fetch complete", zap.Any("counts", raw.Counts()))

	if err := e.transition(ctx, run, model.RunStatusReconciling); err != nil {
		return fail(err)
	}
	cleaned, err := a.Clean(ctx, raw)
	if err != nil {
		return fail(err)
	}

	result.Declarations = cleaned.Stats.Declarations
	result.Summaries = cleaned.Stats.Summaries
	result.LineItems = cleaned.Stats.LineItems
	result.JoinDropped = cleaned.Stats.JoinDropped
	result.OrphanGroups = cleaned.Stats.OrphanGroups
	result.UndeclaredGroups = cleaned.Stats.UndeclaredGroups
	result.Records = len(cleaned.Records)
	result.Details = cleaned.Metadata

	if e.sink != nil {
		if err := e.transition(ctx, run, model.RunStatusPersisting); err != nil {
			return fail(err)
		}
		n, err := e.sink.Write(ctx, a.Name(), cleaned.Records)
		if err != nil {
			return fail(eris.Wrap(err, "engine: persist records"))
		}
		result.Persisted = n
		e.metrics.RecordsPersisted.Add(float64(n))
	}

	elapsed := e.clock.Since(start)
	result.DurationMs = elapsed.Milliseconds()
	if err := e.runs.UpdateRunResult(ctx, run.ID, result); err != nil {
		return fail(err)
	}
	if err := e.transition(ctx, run, model.RunStatusComplete); err != nil {
		return fail(err)
	}
	run.Result = result

	e.metrics.Runs.WithLabelValues(string(model.RunStatusComplete)).Inc()
	e.metrics.RunDuration.Observe(elapsed.Seconds())

	log.Info("run complete",
		zap.Int("records", result.Records),
		zap.Int("join_dropped", result.JoinDropped),
		zap.Int("undeclared_groups", result.UndeclaredGroups),
		zap.Int64("persisted", result.Persisted),
		zap.Any("details", result.Details),
		zap.Duration("elapsed", elapsed),
	)
	return &Output{Run: run, Records: cleaned.Records}, nil
}

func (e *Engine) transition(ctx context.Context, run *model.Run, status model.RunStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.runs.UpdateRunStatus(ctx, run.ID, status); err != nil {
		return eris.Wrapf(err, "engine: set run %s to %s", run.ID, status)
	}
	run.Status = status
	return nil
}
