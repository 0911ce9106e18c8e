package wiscraper

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Row is one untouched case row as returned by the search endpoint
type Row = map[string]any

// CaseSummary is the normalized view of a single search row
type CaseSummary struct {
	CaseNo      string
	CountyNo    int
	CountyName  string
	Caption     string
	PartyName   string
	Status      string
	FilingDate  *time.Time
	ClassCode   string // code of the query that returned this row
	DOB         *string
	IsDOBSealed bool
	Raw         Row
}

// Key returns the case identity
func (s CaseSummary) Key() CaseKey {
	return CaseKey{CaseNo: s.CaseNo, CountyNo: s.CountyNo}
}

// FromRaw normalizes a search row retrieved under classCode.
//
// countyNo that is absent or not numeric becomes 0 rather than an error; the
// portal does not type its payloads consistently.
func FromRaw(payload Row, classCode string) (CaseSummary, error) {
	caseNo := stringField(payload, "caseNo")
	if caseNo == "" {
		return CaseSummary{}, &MissingFieldError{Field: "caseNo"}
	}

	filing, err := ParseFilingDate(stringField(payload, "filingDate"))
	if err != nil {
		return CaseSummary{}, fmt.Errorf("case %s: %w", caseNo, err)
	}

	var dob *string
	if v, ok := payload["dob"]; ok && v != nil {
		s := toString(v)
		dob = &s
	}

	return CaseSummary{
		CaseNo:      caseNo,
		CountyNo:    coerceInt(payload["countyNo"]),
		CountyName:  stringField(payload, "countyName"),
		Caption:     stringField(payload, "caption"),
		PartyName:   stringField(payload, "partyName"),
		Status:      stringField(payload, "status"),
		FilingDate:  filing,
		ClassCode:   classCode,
		DOB:         dob,
		IsDOBSealed: truthy(payload["isDobSealed"]),
		Raw:         payload,
	}, nil
}

// ParseFilingDate accepts YYYY-MM-DD or YYYY-MM (day 1). An empty string is no
// date; anything else is a DateFormatError.
func ParseFilingDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	parts := strings.Split(value, "-")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, &DateFormatError{Value: value}
	}

	nums := make([]int, 3)
	nums[2] = 1
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, &DateFormatError{Value: value}
		}
		nums[i] = n
	}

	year, month, day := nums[0], nums[1], nums[2]
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range values; reject them instead
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return nil, &DateFormatError{Value: value}
	}
	return &t, nil
}

func stringField(payload Row, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	return toString(v)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func coerceInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return int(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
		if f, err := t.Float64(); err == nil {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return 0
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case json.Number:
		return t.String() != "0"
	default:
		return true
	}
}
