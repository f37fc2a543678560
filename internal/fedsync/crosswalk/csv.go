package crosswalk

import (
	"context"
	"io"

	"github.com/sells-group/disaster-recon/internal/fetcher"
)

// Load parses a delimited crosswalk: HUD's comma-separated export or the
// Census pipe-delimited ZCTA relationship file. The first non-blank row must
// be a header naming a ZIP column and a county FIPS column.
func Load(ctx context.Context, r io.Reader) (*Crosswalk, error) {
	return loadCSV(ctx, r, "csv")
}

func loadCSV(ctx context.Context, r io.Reader, source string) (*Crosswalk, error) {
	b := newBuilder()
	if err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true, LazyQuotes: true}, b.add); err != nil {
		return nil, err
	}
	return b.build(source)
}
