package fema

import (
	"strconv"
	"strings"

	"github.com/sells-group/disaster-recon/internal/fedsync/transform"
	"github.com/sells-group/disaster-recon/internal/model"
)

// Predicate is an OData $filter expression: a conjunction of disjunction
// groups. A predicate with an empty group can match nothing.
type Predicate struct {
	groups [][]string
	empty  bool
}

// MatchNothing is the closed empty predicate.
var MatchNothing = Predicate{empty: true}

// MatchesNothing reports whether the predicate is known to select no rows.
// Callers skip the request entirely.
func (p Predicate) MatchesNothing() bool {
	return p.empty
}

// String renders the predicate as OData. Groups are parenthesized and joined
// by " and "; terms within a group are joined by " or ".
func (p Predicate) String() string {
	if p.empty {
		return "(false)"
	}
	parts := make([]string, len(p.groups))
	for i, g := range p.groups {
		parts[i] = "(" + strings.Join(g, " or ") + ")"
	}
	return strings.Join(parts, " and ")
}

// Terms returns the number of equality terms in the predicate.
func (p Predicate) Terms() int {
	n := 0
	for _, g := range p.groups {
		n += len(g)
	}
	return n
}

func newPredicate(groups ...[]string) Predicate {
	for _, g := range groups {
		if len(g) == 0 {
			return MatchNothing
		}
	}
	return Predicate{groups: groups}
}

// StateYearFilter selects declarations in any of states declared in any of
// years. States may be postal abbreviations or FIPS codes; unknown states are
// skipped. Either list being empty yields MatchNothing.
func StateYearFilter(states []string, years []int) Predicate {
	seenState := make(map[string]bool, len(states))
	var stateTerms []string
	for _, s := range states {
		fips, ok := transform.StateToFIPS(s)
		if !ok || seenState[fips] {
			continue
		}
		seenState[fips] = true
		stateTerms = append(stateTerms, "fipsStateCode eq '"+fips+"'")
	}

	seenYear := make(map[int]bool, len(years))
	var yearTerms []string
	for _, y := range years {
		if seenYear[y] {
			continue
		}
		seenYear[y] = true
		yearTerms = append(yearTerms, "fyDeclared eq "+strconv.Itoa(y))
	}

	return newPredicate(stateTerms, yearTerms)
}

// KeyFilter selects rows whose disasterNumber is one of keys.
func KeyFilter(keys []model.DisasterNumber) Predicate {
	terms := make([]string, 0, len(keys))
	for _, k := range keys {
		terms = append(terms, "disasterNumber eq "+strconv.Itoa(int(k)))
	}
	return newPredicate(terms)
}
