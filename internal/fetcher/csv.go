package fetcher

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// RowFunc receives one row of a tabular file. line is 1-based.
type RowFunc func(line int, row []string) error

// utf8BOM is stripped from the start of a CSV file.
const utf8BOM = "\ufeff"

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	// Delimiter separates fields. Zero detects ',', '|', or '\t' from the
	// first line; the Census ZCTA relationship files are pipe-delimited.
	Delimiter  rune
	Comment    rune
	LazyQuotes bool
	TrimSpace  bool
}

// ReadCSV calls fn for every row of r, header included, stopping at the
// first error fn returns.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions, fn RowFunc) error {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && string(b) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.Comment = opts.Comment
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "csv: read cancelled")
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "csv: read row")
		}
		line, _ := reader.FieldPos(0)

		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}
		if err := fn(line, record); err != nil {
			return eris.Wrapf(err, "csv: line %d", line)
		}
	}
}

// sniffDelimiter picks the most frequent candidate delimiter on the first
// line, defaulting to a comma.
func sniffDelimiter(br *bufio.Reader) rune {
	// Peek returns what it has when the buffer or input ends first.
	head, _ := br.Peek(br.Size())
	first, _, _ := strings.Cut(string(head), "\n")

	best, bestCount := ',', strings.Count(first, ",")
	for _, d := range []rune{'|', '\t'} {
		if n := strings.Count(first, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
