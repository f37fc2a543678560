package reconcile

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Column names one output column.
type Column struct {
	Name        string
	Description string
}

var columns = []Column{
	{"disaster_number", "FEMA disaster number"},
	{"state", "State postal abbreviation from the declaration"},
	{"state_fips", "2-digit state FIPS code"},
	{"county_fips", "3-digit county FIPS code"},
	{"year", "Fiscal year the disaster was declared"},
	{"declaration_date", "Date the disaster was declared"},
	{"incident_type", "Type of incident, e.g. Hurricane or Flood"},
	{"disaster_name", "Declaration title"},
	{"incident_begin_date", "Start of the incident period"},
	{"incident_end_date", "End of the incident period"},
	{"total_approved_ihp", "Individuals and Households Program dollars approved"},
	{"total_approved_ha", "Housing Assistance dollars approved"},
	{"total_approved_ona", "Other Needs Assistance dollars approved"},
	{"total_obligated_pa", "Public Assistance grant dollars obligated"},
	{"total_obligated_ab", "Public Assistance Category A-B (emergency work) dollars obligated"},
	{"total_obligated_c2g", "Public Assistance Category C-G (permanent work) dollars obligated"},
	{"total_obligated_hmgp", "Hazard Mitigation Grant Program dollars obligated"},
	{"aid_requested", "Mission assignment dollars requested in the county"},
	{"aid_obligated", "Mission assignment dollars obligated in the county"},
	{"line_items", "Mission assignments aggregated into the county"},
	{"total_approved", "Sum of IHP, HA, and ONA approved, absent amounts as zero"},
	{"total_obligated", "Sum of PA, Category A-B, Category C-G, and HMGP obligated, absent amounts as zero"},
	{"county_source", "Whether the county came from the ZIP crosswalk or the declaration"},
}

// Columns returns the output columns in order.
func Columns() []Column {
	return slices.Clone(columns)
}

// ColumnNames returns the output column names in order.
func ColumnNames() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// Table is the tabular form of a set of records. Absent values are nil.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// NewTable lays records out as rows matching Columns.
func NewTable(records []Record) Table {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = r.Values()
	}
	return Table{Columns: Columns(), Rows: rows}
}

// Values returns the record's fields in column order.
func (r Record) Values() []any {
	return []any{
		int(r.DisasterNumber),
		optString(r.State),
		r.StateFIPS,
		r.CountyFIPS,
		r.Year,
		optTime(r.DeclarationDate),
		optString(r.IncidentType),
		optString(r.DisasterName),
		optTime(r.IncidentBeginDate),
		optTime(r.IncidentEndDate),
		optDecimal(r.ApprovedIHP),
		optDecimal(r.ApprovedHA),
		optDecimal(r.ApprovedONA),
		optDecimal(r.ObligatedPA),
		optDecimal(r.ObligatedCatAB),
		optDecimal(r.ObligatedCatC2G),
		optDecimal(r.ObligatedHMGP),
		optDecimal(r.AidRequested),
		optDecimal(r.AidObligated),
		r.LineItems,
		r.TotalApproved,
		r.TotalObligated,
		string(r.CountySource),
	}
}

func optString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func optDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}
