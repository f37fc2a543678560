package fema

import (
	"context"
	"time"

	"github.com/sells-group/disaster-recon/internal/fetcher"
	"github.com/sells-group/disaster-recon/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultPageSize is the OpenFEMA maximum $top for most entity sets.
const DefaultPageSize = 1000

// PaginatorOptions configures a Paginator.
type PaginatorOptions struct {
	PageSize    int // default 1000
	Concurrency int // concurrent page requests, default 4
	Metrics     *observability.Metrics
}

// Paginator retrieves every row matching a query by probing the count and
// then requesting the pages concurrently.
type Paginator struct {
	src         Source
	pageSize    int
	concurrency int
	metrics     *observability.Metrics
}

// NewPaginator creates a Paginator over src.
func NewPaginator(src Source, opts PaginatorOptions) *Paginator {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Discard()
	}
	return &Paginator{
		src:         src,
		pageSize:    opts.PageSize,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
	}
}

// PageSize returns the configured page size.
func (p *Paginator) PageSize() int {
	return p.pageSize
}

// PageCount returns how many pages of pageSize cover count rows.
func PageCount(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

// FetchAll returns every row matching q, in offset order. A predicate that
// matches nothing returns an empty slice without touching the source. Any
// failed request fails the whole fetch with a *TransportError and no partial
// result.
func FetchAll[T any](ctx context.Context, p *Paginator, q Query) ([]T, error) {
	if q.Filter.MatchesNothing() {
		return []T{}, nil
	}

	name := q.Dataset.Name
	log := zap.L().With(zap.String("dataset", name))
	start := time.Now()

	p.metrics.Requests.WithLabelValues(name, StageCount).Inc()
	count, err := p.src.Count(ctx, q)
	if err != nil {
		p.metrics.RequestErrors.WithLabelValues(name, StageCount).Inc()
		return nil, &TransportError{
			Dataset:    name,
			Stage:      StageCount,
			Offset:     -1,
			StatusCode: fetcher.StatusCodeOf(err),
			Err:        err,
		}
	}

	pages := PageCount(count, p.pageSize)
	log.Debug("fema: count request",
		zap.Int("count", count),
		zap.Int("pages", pages),
		zap.Int("filter_terms", q.Filter.Terms()),
	)
	if pages == 0 {
		return []T{}, nil
	}

	results := make([][]T, pages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := range pages {
		skip := i * p.pageSize
		want := min(p.pageSize, count-skip)
		g.Go(func() error {
			rows, err := fetchPage[T](gctx, p, q, skip)
			if err != nil {
				return err
			}
			if len(rows) < want {
				p.metrics.ShortPages.WithLabelValues(name).Inc()
				log.Warn("fema: short page",
					zap.Int("offset", skip),
					zap.Int("want", want),
					zap.Int("got", len(rows)),
				)
			}
			results[i] = rows
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]T, 0, count)
	for _, rows := range results {
		out = append(out, rows...)
	}

	if len(out) < count {
		log.Warn("fema: fewer records than the count request reported",
			zap.Int("count", count),
			zap.Int("records", len(out)),
		)
	}

	p.metrics.RecordsFetched.WithLabelValues(name).Add(float64(len(out)))
	p.metrics.FetchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	log.Info("fema: dataset fetched",
		zap.Int("records", len(out)),
		zap.Int("pages", pages),
		zap.Duration("elapsed", time.Since(start)),
	)

	return out, nil
}

func fetchPage[T any](ctx context.Context, p *Paginator, q Query, skip int) ([]T, error) {
	name := q.Dataset.Name
	p.metrics.Requests.WithLabelValues(name, StagePage).Inc()

	fail := func(err error) error {
		p.metrics.RequestErrors.WithLabelValues(name, StagePage).Inc()
		return &TransportError{
			Dataset:    name,
			Stage:      StagePage,
			Offset:     skip,
			StatusCode: fetcher.StatusCodeOf(err),
			Err:        err,
		}
	}

	body, err := p.src.Page(ctx, q, skip, p.pageSize)
	if err != nil {
		return nil, fail(err)
	}
	defer body.Close() //nolint:errcheck

	rows, err := fetcher.CollectJSONArray[T](ctx, body)
	if err != nil {
		return nil, fail(err)
	}
	return rows, nil
}
