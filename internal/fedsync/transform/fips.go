// Package transform normalizes the geographic codes shared by the FEMA
// datasets and the ZIP crosswalk. Codes stay strings throughout so leading
// zeros survive.
package transform

import (
	"strings"
)

// NormalizeFIPSState normalizes a state FIPS code to 2 digits with zero-padding.
// Non-numeric input returns "".
func NormalizeFIPSState(code string) string {
	return padDigits(code, 2)
}

// NormalizeFIPSCounty normalizes a county FIPS code to 3 digits with zero-padding.
func NormalizeFIPSCounty(code string) string {
	return padDigits(code, 3)
}

// NormalizeCountyFIPS normalizes a combined state+county code to 5 digits.
// Spreadsheet exports often drop the leading zero ("1001" for Autauga, AL).
func NormalizeCountyFIPS(code string) string {
	return padDigits(code, 5)
}

// CombineFIPS combines state and county FIPS codes into a 5-digit code.
func CombineFIPS(state, county string) string {
	s := NormalizeFIPSState(state)
	c := NormalizeFIPSCounty(county)
	if s == "" || c == "" {
		return ""
	}
	return s + c
}

// SplitFIPS splits a combined county FIPS code into its state and county parts.
// ok is false when the code cannot be normalized to 5 digits.
func SplitFIPS(code string) (state, county string, ok bool) {
	code = NormalizeCountyFIPS(code)
	if code == "" {
		return "", "", false
	}
	return code[:2], code[2:], true
}

// NormalizeZIP normalizes a ZIP code to 5 digits. ZIP+4 suffixes are dropped.
func NormalizeZIP(zip string) string {
	zip = strings.TrimSpace(zip)
	if i := strings.IndexByte(zip, '-'); i >= 0 {
		zip = zip[:i]
	}
	return padDigits(zip, 5)
}

// padDigits left-pads a digit string with zeros to width. Empty, non-numeric,
// and over-long input returns "".
func padDigits(code string, width int) string {
	code = strings.TrimSpace(code)
	if code == "" || len(code) > width {
		return ""
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return strings.Repeat("0", width-len(code)) + code
}
