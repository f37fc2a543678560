// Package fema queries the OpenFEMA API: filter construction, count-first
// pagination, and the staged fetch of declarations and their dependent
// datasets.
package fema

// Dataset describes one OpenFEMA entity set and the fields projected from it.
type Dataset struct {
	Name   string
	Path   string
	Fields []string
}

// DisasterDeclarations is the primary dataset. Its disaster numbers gate the
// dependent fetches.
var DisasterDeclarations = Dataset{
	Name: "DisasterDeclarationsSummaries",
	Path: "/v2/DisasterDeclarationsSummaries",
	Fields: []string{
		"disasterNumber",
		"state",
		"declarationDate",
		"fyDeclared",
		"incidentType",
		"declarationTitle",
		"incidentBeginDate",
		"incidentEndDate",
		"fipsStateCode",
		"fipsCountyCode",
	},
}

// WebDisasterSummaries carries per-disaster financial totals.
var WebDisasterSummaries = Dataset{
	Name: "FemaWebDisasterSummaries",
	Path: "/v1/FemaWebDisasterSummaries",
	Fields: []string{
		"disasterNumber",
		"totalAmountIhpApproved",
		"totalAmountHaApproved",
		"totalAmountOnaApproved",
		"totalObligatedAmountPa",
		"totalObligatedAmountCatAb",
		"totalObligatedAmountCatC2g",
		"totalObligatedAmountHmgp",
	},
}

// MissionAssignments carries ZIP-level line items.
var MissionAssignments = Dataset{
	Name: "MissionAssignments",
	Path: "/v1/MissionAssignments",
	Fields: []string{
		"disasterNumber",
		"zip",
		"requestedAmount",
		"obligationAmount",
	},
}
