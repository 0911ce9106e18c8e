package wiscraper

import "strings"

// ClassCode is a portal case-type filter. Identity is Code.
type ClassCode struct {
	Code  string `json:"code" yaml:"code"`
	Label string `json:"label" yaml:"label"`
}

// DefaultClassCodes is the class-code list swept when the caller names none.
// Callers pass it explicitly; nothing in this package reads it implicitly.
func DefaultClassCodes() []ClassCode {
	return []ClassCode{
		{Code: "50111", Label: "Wills filed - no probate"},
		{Code: "50101", Label: "Probate Unscheduled"},
		{Code: "30401", Label: "Foreclosure of Mortgage"},
		{Code: "30402", Label: "Agricultural Foreclosure"},
		{Code: "30902", Label: "Small Claims, Eviction Due to Foreclosure"},
		{Code: "30901", Label: "Small Claims, Eviction"},
		{Code: "30703", Label: "Municipal Utility Lien"},
		{Code: "30701", Label: "Construction Lien"},
	}
}

// ResolveClassCodes maps requested codes onto known entries, synthesizing a
// label for unknown codes. An empty selection returns the known list.
func ResolveClassCodes(selected []string, known []ClassCode) []ClassCode {
	if len(selected) == 0 {
		return append([]ClassCode(nil), known...)
	}

	lookup := make(map[string]ClassCode, len(known))
	for _, c := range known {
		lookup[c.Code] = c
	}

	resolved := make([]ClassCode, 0, len(selected))
	for _, code := range selected {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		entry, ok := lookup[code]
		if !ok {
			entry = ClassCode{Code: code, Label: "Class code " + code}
		}
		resolved = append(resolved, entry)
	}
	return resolved
}

// Codes returns the code strings in order
func Codes(classCodes []ClassCode) []string {
	out := make([]string, len(classCodes))
	for i, c := range classCodes {
		out[i] = c.Code
	}
	return out
}
