// Package crosswalk maps ZIP codes to counties and attaches counties to ZIP
// level line items.
package crosswalk

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sells-group/disaster-recon/internal/fedsync/transform"
	"github.com/sells-group/disaster-recon/internal/fetcher"
	"go.uber.org/zap"
)

// County identifies a county by its state and county FIPS parts.
type County struct {
	StateFIPS  string
	CountyFIPS string
}

// FIPS returns the 5-digit county FIPS code.
func (c County) FIPS() string {
	return c.StateFIPS + c.CountyFIPS
}

// Crosswalk is a read-only ZIP to county table, safe for concurrent readers.
type Crosswalk struct {
	zips map[string]County
}

// New builds a Crosswalk from a ZIP to county map. Keys are normalized.
func New(entries map[string]County) *Crosswalk {
	c := &Crosswalk{zips: make(map[string]County, len(entries))}
	for zip, county := range entries {
		if z := transform.NormalizeZIP(zip); z != "" {
			c.zips[z] = county
		}
	}
	return c
}

// Len returns the number of ZIP codes mapped.
func (c *Crosswalk) Len() int {
	return len(c.zips)
}

// Lookup returns the county for zip.
func (c *Crosswalk) Lookup(zip string) (County, bool) {
	county, ok := c.zips[transform.NormalizeZIP(zip)]
	return county, ok
}

// Column names accepted in a crosswalk header, compared case-insensitively.
var (
	zipColumns    = []string{"ZIP", "ZIPCODE", "ZIP_CODE", "ZCTA5", "GEOID_ZCTA5_20"}
	countyColumns = []string{"STCOUNTYFP", "COUNTY", "COUNTY_FIPS", "COUNTYFP", "GEOID", "GEOID_COUNTY_20"}
)

// builder accumulates rows into a Crosswalk. The first row is the header.
type builder struct {
	zipIdx, countyIdx int
	header            bool
	zips              map[string]County
	skipped           int
}

func newBuilder() *builder {
	return &builder{zips: make(map[string]County)}
}

func (b *builder) add(_ int, row []string) error {
	if !b.header {
		if isBlank(row) {
			return nil
		}
		b.zipIdx = columnIndex(row, zipColumns)
		b.countyIdx = columnIndex(row, countyColumns)
		if b.zipIdx < 0 {
			return eris.Errorf("crosswalk: header has no ZIP column (want one of %v)", zipColumns)
		}
		if b.countyIdx < 0 {
			return eris.Errorf("crosswalk: header has no county column (want one of %v)", countyColumns)
		}
		b.header = true
		return nil
	}

	if b.zipIdx >= len(row) || b.countyIdx >= len(row) {
		b.skipped++
		return nil
	}
	zip := transform.NormalizeZIP(row[b.zipIdx])
	state, county, ok := transform.SplitFIPS(row[b.countyIdx])
	if zip == "" || !ok {
		b.skipped++
		return nil
	}
	// HUD orders a ZIP's counties by residential share; keep the first.
	if _, dup := b.zips[zip]; dup {
		return nil
	}
	b.zips[zip] = County{StateFIPS: state, CountyFIPS: county}
	return nil
}

func (b *builder) build(source string) (*Crosswalk, error) {
	if !b.header {
		return nil, eris.Errorf("crosswalk: %s is empty", source)
	}
	zap.L().Info("crosswalk: loaded",
		zap.String("source", source),
		zap.Int("zips", len(b.zips)),
		zap.Int("skipped_rows", b.skipped),
	)
	return &Crosswalk{zips: b.zips}, nil
}

func columnIndex(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToUpper(strings.TrimSpace(h))
		if slices.Contains(names, h) {
			return i
		}
	}
	return -1
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// LoadFile loads a CSV or XLSX crosswalk, chosen by file extension.
func LoadFile(ctx context.Context, p string) (*Crosswalk, error) {
	if strings.EqualFold(filepath.Ext(p), ".xlsx") {
		return LoadXLSX(ctx, p, "")
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, eris.Wrapf(err, "crosswalk: open %s", p)
	}
	defer f.Close() //nolint:errcheck

	return loadCSV(ctx, f, p)
}

// Fetch loads the crosswalk at src. An http(s) URL is downloaded into
// tempDir first; anything else is treated as a local path.
func Fetch(ctx context.Context, f fetcher.Fetcher, src, tempDir string) (*Crosswalk, error) {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return LoadFile(ctx, src)
	}

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "crosswalk: create temp dir %s", tempDir)
	}
	ext := path.Ext(u.Path)
	if ext == "" {
		ext = ".csv"
	}
	local := filepath.Join(tempDir, "zip_county"+ext)

	n, err := f.DownloadToFile(ctx, src, local)
	if err != nil {
		return nil, eris.Wrapf(err, "crosswalk: download %s", src)
	}
	zap.L().Info("crosswalk: downloaded", zap.String("url", src), zap.Int64("bytes", n))

	return LoadFile(ctx, local)
}
