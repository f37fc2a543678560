package model

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DisasterNumber is FEMA's identifier for a declared disaster.
type DisasterNumber int

// Code is a ZIP or FIPS code. It is always carried as text so leading zeros
// survive; JSON numbers are taken verbatim rather than converted.
type Code string

// UnmarshalJSON accepts a JSON string, a bare number, or null.
func (c *Code) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = Code(n.String())
	return nil
}

// Declaration is one row of DisasterDeclarationsSummaries: a disaster declared
// for one county (or statewide) in one state.
type Declaration struct {
	DisasterNumber    DisasterNumber `json:"disasterNumber"`
	State             string         `json:"state"`
	StateFIPS         Code           `json:"fipsStateCode"`
	CountyFIPS        Code           `json:"fipsCountyCode"`
	FYDeclared        int            `json:"fyDeclared"`
	DeclarationDate   *time.Time     `json:"declarationDate"`
	IncidentType      string         `json:"incidentType"`
	DeclarationTitle  string         `json:"declarationTitle"`
	IncidentBeginDate *time.Time     `json:"incidentBeginDate"`
	IncidentEndDate   *time.Time     `json:"incidentEndDate"`
}

// FinancialSummary is one row of FemaWebDisasterSummaries. Amounts are nil
// when the source omits them.
type FinancialSummary struct {
	DisasterNumber  DisasterNumber   `json:"disasterNumber"`
	ApprovedIHP     *decimal.Decimal `json:"totalAmountIhpApproved"`
	ApprovedHA      *decimal.Decimal `json:"totalAmountHaApproved"`
	ApprovedONA     *decimal.Decimal `json:"totalAmountOnaApproved"`
	ObligatedPA     *decimal.Decimal `json:"totalObligatedAmountPa"`
	ObligatedCatAB  *decimal.Decimal `json:"totalObligatedAmountCatAb"`
	ObligatedCatC2G *decimal.Decimal `json:"totalObligatedAmountCatC2g"`
	ObligatedHMGP   *decimal.Decimal `json:"totalObligatedAmountHmgp"`
}

// MissionAssignment is one line item of the MissionAssignments dataset.
type MissionAssignment struct {
	DisasterNumber   DisasterNumber   `json:"disasterNumber"`
	ZIP              Code             `json:"zip"`
	RequestedAmount  *decimal.Decimal `json:"requestedAmount"`
	ObligationAmount *decimal.Decimal `json:"obligationAmount"`
}

// CountyLineItem is a MissionAssignment with the county its ZIP maps to.
type CountyLineItem struct {
	MissionAssignment
	StateFIPS  string
	CountyFIPS string
}

// FIPS returns the 5-digit county FIPS code.
func (c CountyLineItem) FIPS() string {
	return c.StateFIPS + c.CountyFIPS
}

// KeySet is a sorted, duplicate-free set of disaster numbers. The zero value
// is an empty set.
type KeySet struct {
	keys []DisasterNumber
}

// NewKeySet builds a KeySet from keys in any order.
func NewKeySet(keys ...DisasterNumber) KeySet {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	return KeySet{keys: slices.Compact(sorted)}
}

// KeysOf extracts the distinct disaster numbers of a set of declarations.
func KeysOf(decls []Declaration) KeySet {
	keys := make([]DisasterNumber, len(decls))
	for i, d := range decls {
		keys[i] = d.DisasterNumber
	}
	return NewKeySet(keys...)
}

// Len returns the number of keys.
func (k KeySet) Len() int { return len(k.keys) }

// Keys returns a copy of the keys in ascending order.
func (k KeySet) Keys() []DisasterNumber { return slices.Clone(k.keys) }

// Chunks splits the set into consecutive runs of at most size keys.
// A non-positive size yields a single chunk.
func (k KeySet) Chunks(size int) [][]DisasterNumber {
	if len(k.keys) == 0 {
		return nil
	}
	if size <= 0 || size >= len(k.keys) {
		return [][]DisasterNumber{k.Keys()}
	}
	var out [][]DisasterNumber
	for chunk := range slices.Chunk(k.keys, size) {
		out = append(out, slices.Clone(chunk))
	}
	return out
}
