package fetcher

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX calls fn for every non-empty row of a workbook sheet. An empty
// sheet name reads the first sheet. Cells are read as formatted text so
// text-typed codes keep their leading zeros, and trailing blank cells are
// dropped.
func ReadXLSX(ctx context.Context, path, sheet string, fn RowFunc) error {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return eris.Wrapf(err, "xlsx: open %s", path)
	}

	s, err := pickSheet(f, sheet)
	if err != nil {
		return err
	}

	for i, row := range s.Rows {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "xlsx: read cancelled")
		}
		if row == nil {
			continue
		}
		cells := rowText(row)
		if len(cells) == 0 {
			continue
		}
		if err := fn(i+1, cells); err != nil {
			return eris.Wrapf(err, "xlsx: %s row %d", s.Name, i+1)
		}
	}
	return nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name == "" {
		if len(f.Sheets) == 0 {
			return nil, eris.New("xlsx: workbook has no sheets")
		}
		return f.Sheets[0], nil
	}
	s, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}
	return s, nil
}

func rowText(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	last := -1
	for j, cell := range row.Cells {
		cells[j] = cell.String()
		if cells[j] != "" {
			last = j
		}
	}
	return cells[:last+1]
}
