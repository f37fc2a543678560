package crosswalk

import (
	"context"

	"github.com/sells-group/disaster-recon/internal/fetcher"
)

// LoadXLSX parses an XLSX crosswalk such as HUD's ZIP_COUNTY workbook. An
// empty sheet name reads the first sheet.
func LoadXLSX(ctx context.Context, path, sheet string) (*Crosswalk, error) {
	b := newBuilder()
	if err := fetcher.ReadXLSX(ctx, path, sheet, b.add); err != nil {
		return nil, err
	}
	return b.build(path)
}
