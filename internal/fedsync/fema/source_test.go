package fema

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"
)

type testRow struct {
	ID int `json:"id"`
}

// fakeSource serves count rows per dataset, with row i having ID i.
type fakeSource struct {
	mu      sync.Mutex
	counts  map[string]int
	pageErr map[int]error // by offset
	served  map[int]int   // by offset: rows to return instead of a full page
	cntErr  error
	delay   func(skip int) time.Duration

	countCalls []Query
	pageCalls  map[string][]int
}

func newFakeSource(counts map[string]int) *fakeSource {
	return &fakeSource{
		counts:    counts,
		pageErr:   map[int]error{},
		served:    map[int]int{},
		pageCalls: map[string][]int{},
	}
}

func (f *fakeSource) Count(ctx context.Context, q Query) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls = append(f.countCalls, q)
	if f.cntErr != nil {
		return 0, f.cntErr
	}
	return f.counts[q.Dataset.Name], nil
}

func (f *fakeSource) Page(ctx context.Context, q Query, skip, top int) (io.ReadCloser, error) {
	f.mu.Lock()
	f.pageCalls[q.Dataset.Name] = append(f.pageCalls[q.Dataset.Name], skip)
	err := f.pageErr[skip]
	count := f.counts[q.Dataset.Name]
	served, short := f.served[skip]
	delay := f.delay
	f.mu.Unlock()

	if delay != nil {
		select {
		case <-time.After(delay(skip)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	end := min(skip+top, count)
	if short {
		end = skip + served
	}
	rows := []testRow{}
	for i := skip; i < end; i++ {
		rows = append(rows, testRow{ID: i})
	}
	data, _ := json.Marshal(rows)
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeSource) offsets(dataset string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.pageCalls[dataset]...)
	sort.Ints(out)
	return out
}

func (f *fakeSource) totalRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.countCalls)
	for _, calls := range f.pageCalls {
		n += len(calls)
	}
	return n
}
