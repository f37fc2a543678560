package main

import (
	"context"
	"math"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/disaster-recon/internal/config"
	"github.com/sells-group/disaster-recon/internal/db"
	"github.com/sells-group/disaster-recon/internal/fedsync"
	"github.com/sells-group/disaster-recon/internal/fedsync/crosswalk"
	"github.com/sells-group/disaster-recon/internal/fedsync/fema"
	"github.com/sells-group/disaster-recon/internal/fetcher"
	"github.com/sells-group/disaster-recon/internal/observability"
)

// newFetcher builds the HTTP fetcher for the OpenFEMA host in c.
func newFetcher(c config.FEMAConfig) *fetcher.HTTPFetcher {
	opts := fetcher.HTTPOptions{
		UserAgent:  c.UserAgent,
		Timeout:    time.Duration(c.TimeoutSecs) * time.Second,
		MaxRetries: c.MaxRetries,
	}
	if c.RateLimit > 0 {
		host := fetcher.FEMAHost
		if u, err := url.Parse(c.BaseURL); err == nil && u.Host != "" {
			host = u.Host
		}
		opts.AdaptiveLimiters = map[string]*fetcher.AdaptiveLimiter{
			host: fetcher.NewAdaptiveLimiter(rate.Limit(c.RateLimit), int(math.Ceil(c.RateLimit))),
		}
	}
	return fetcher.NewHTTPFetcher(opts)
}

// newAdapter wires the OpenFEMA client, paginator, orchestrator, and the
// crosswalk loaded from crosswalkSrc into an adapter.
func newAdapter(ctx context.Context, c *config.Config, crosswalkSrc string, m *observability.Metrics) (*fema.Adapter, error) {
	f := newFetcher(c.FEMA)

	if crosswalkSrc == "" {
		crosswalkSrc = c.Crosswalk.Path
	}
	if crosswalkSrc == "" {
		return nil, eris.New("no crosswalk configured (set crosswalk.path or --crosswalk)")
	}
	cw, err := crosswalk.Fetch(ctx, f, crosswalkSrc, c.Crosswalk.TempDir)
	if err != nil {
		return nil, err
	}
	// Every line item would be dropped by the join.
	if cw.Len() == 0 {
		return nil, eris.Errorf("crosswalk: %s maps no ZIP codes", crosswalkSrc)
	}

	pager := fema.NewPaginator(fema.NewClient(c.FEMA.BaseURL, f), fema.PaginatorOptions{
		PageSize:    c.FEMA.PageSize,
		Concurrency: c.FEMA.PageConcurrency,
		Metrics:     m,
	})
	orch := fema.NewOrchestrator(pager, c.FEMA.KeyBatchSize)
	return fema.NewAdapter(orch, cw, m), nil
}

// sinkPool connects to the record sink database.
func sinkPool(ctx context.Context, c *config.Config) (db.Pool, func(), error) {
	dsn := c.Sink.DatabaseURL
	if dsn == "" && c.Store.Driver == "postgres" {
		dsn = c.Store.DatabaseURL
	}
	if dsn == "" {
		return nil, nil, eris.New("no sink database configured (set sink.database_url)")
	}
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

// newSink returns the Postgres sink for persisted runs.
func newSink(pool db.Pool, c *config.Config) *fedsync.PostgresSink {
	return fedsync.NewPostgresSink(pool, c.Sink.Table)
}
