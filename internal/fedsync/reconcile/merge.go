package reconcile

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-recon/internal/fedsync/transform"
	"github.com/sells-group/disaster-recon/internal/model"
)

// CountySource records which inputs placed a record's aid in its county.
// Every record's county is a declared one.
type CountySource string

const (
	// CountyFromCrosswalk marks a declared county that also received line
	// items through the ZIP crosswalk.
	CountyFromCrosswalk CountySource = "crosswalk"
	// CountyFromDeclaration marks a declared county with no line items.
	CountyFromDeclaration CountySource = "declaration"
)

// Record is the reconciled view of one disaster in one county.
type Record struct {
	DisasterNumber    model.DisasterNumber
	State             string
	StateFIPS         string
	CountyFIPS        string
	Year              int
	DeclarationDate   *time.Time
	IncidentType      string
	DisasterName      string
	IncidentBeginDate *time.Time
	IncidentEndDate   *time.Time

	ApprovedIHP     *decimal.Decimal
	ApprovedHA      *decimal.Decimal
	ApprovedONA     *decimal.Decimal
	ObligatedPA     *decimal.Decimal
	ObligatedCatAB  *decimal.Decimal
	ObligatedCatC2G *decimal.Decimal
	ObligatedHMGP   *decimal.Decimal

	AidRequested *decimal.Decimal
	AidObligated *decimal.Decimal
	LineItems    int

	TotalApproved  decimal.Decimal
	TotalObligated decimal.Decimal

	CountySource CountySource
}

// FIPS returns the 5-digit county FIPS code.
func (r Record) FIPS() string {
	return r.StateFIPS + r.CountyFIPS
}

// MergeStats describes what Merge kept and discarded.
type MergeStats struct {
	Records             int
	DeclaredCounties    int
	WithLineItems       int
	MissingSummaries    int
	OrphanGroups        int
	OrphanLineItems     int
	UndeclaredGroups    int
	UndeclaredLineItems int
	InvalidDeclarations int
}

// Merge left-joins declarations with financial summaries and line-item
// summaries into one Record per declared (disaster, county). Line-item groups
// never create records: groups of undeclared disasters count as orphans, and
// groups in counties the disaster did not declare count as undeclared. Output
// is ordered by disaster number, then county FIPS.
func Merge(decls []model.Declaration, summaries []model.FinancialSummary, groups []LineItemSummary) ([]Record, MergeStats) {
	var stats MergeStats

	bySummary := make(map[model.DisasterNumber]model.FinancialSummary, len(summaries))
	for _, s := range summaries {
		if _, ok := bySummary[s.DisasterNumber]; !ok {
			bySummary[s.DisasterNumber] = s
		}
	}

	declared := make(map[model.DisasterNumber]bool)
	records := make(map[groupKey]*Record)

	for _, d := range decls {
		declared[d.DisasterNumber] = true
		fips := transform.CombineFIPS(string(d.StateFIPS), string(d.CountyFIPS))
		if fips == "" {
			stats.InvalidDeclarations++
			continue
		}
		k := groupKey{disaster: d.DisasterNumber, fips: fips}
		if _, ok := records[k]; ok {
			continue
		}
		r := fromDeclaration(d, fips[:2], fips[2:])
		r.CountySource = CountyFromDeclaration
		records[k] = r
		stats.DeclaredCounties++
	}

	var undeclaredSample []string
	for _, g := range groups {
		if !declared[g.DisasterNumber] {
			stats.OrphanGroups++
			stats.OrphanLineItems += g.LineItems
			continue
		}
		r, ok := records[groupKey{disaster: g.DisasterNumber, fips: g.FIPS()}]
		if !ok {
			stats.UndeclaredGroups++
			stats.UndeclaredLineItems += g.LineItems
			if len(undeclaredSample) < 10 {
				undeclaredSample = append(undeclaredSample, g.FIPS())
			}
			continue
		}
		r.AidRequested = g.Requested
		r.AidObligated = g.Obligated
		r.LineItems = g.LineItems
		r.CountySource = CountyFromCrosswalk
		stats.WithLineItems++
	}

	missing := make(map[model.DisasterNumber]bool)
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if s, ok := bySummary[r.DisasterNumber]; ok {
			applySummary(r, s)
		} else {
			missing[r.DisasterNumber] = true
		}
		r.TotalApproved = SumPresent(r.ApprovedIHP, r.ApprovedHA, r.ApprovedONA)
		r.TotalObligated = SumPresent(r.ObligatedPA, r.ObligatedCatAB, r.ObligatedCatC2G, r.ObligatedHMGP)
		out = append(out, *r)
	}
	stats.MissingSummaries = len(missing)
	stats.Records = len(out)

	slices.SortFunc(out, func(a, b Record) int {
		return cmp.Or(
			cmp.Compare(a.DisasterNumber, b.DisasterNumber),
			cmp.Compare(a.FIPS(), b.FIPS()),
		)
	})

	if stats.OrphanGroups > 0 {
		zap.L().Warn("reconcile: line items for undeclared disasters discarded",
			zap.Int("groups", stats.OrphanGroups),
			zap.Int("line_items", stats.OrphanLineItems),
		)
	}
	if stats.UndeclaredGroups > 0 {
		zap.L().Warn("reconcile: line items outside declared counties discarded",
			zap.Int("groups", stats.UndeclaredGroups),
			zap.Int("line_items", stats.UndeclaredLineItems),
			zap.Strings("sample_fips", undeclaredSample),
		)
	}

	return out, stats
}

func fromDeclaration(d model.Declaration, stateFIPS, countyFIPS string) *Record {
	return &Record{
		DisasterNumber:    d.DisasterNumber,
		State:             d.State,
		StateFIPS:         stateFIPS,
		CountyFIPS:        countyFIPS,
		Year:              d.FYDeclared,
		DeclarationDate:   d.DeclarationDate,
		IncidentType:      d.IncidentType,
		DisasterName:      d.DeclarationTitle,
		IncidentBeginDate: d.IncidentBeginDate,
		IncidentEndDate:   d.IncidentEndDate,
	}
}

func applySummary(r *Record, s model.FinancialSummary) {
	r.ApprovedIHP = s.ApprovedIHP
	r.ApprovedHA = s.ApprovedHA
	r.ApprovedONA = s.ApprovedONA
	r.ObligatedPA = s.ObligatedPA
	r.ObligatedCatAB = s.ObligatedCatAB
	r.ObligatedCatC2G = s.ObligatedCatC2G
	r.ObligatedHMGP = s.ObligatedHMGP
}
