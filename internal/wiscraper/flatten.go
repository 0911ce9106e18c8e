package wiscraper

import "time"

// FlatCase is the serializable projection of an AggregatedCase
type FlatCase struct {
	CaseNo      string   `json:"case_no"`
	CountyNo    int      `json:"county_no"`
	CountyName  string   `json:"county_name"`
	Caption     string   `json:"caption"`
	PartyName   string   `json:"party_name"`
	Status      string   `json:"status"`
	FilingDate  *string  `json:"filing_date"`
	DOB         *string  `json:"dob"`
	IsDOBSealed bool     `json:"is_dob_sealed"`
	ClassCodes  []string `json:"class_codes"`
	Raw         Row      `json:"raw"`
}

// Key returns the case identity
func (f FlatCase) Key() CaseKey {
	return CaseKey{CaseNo: f.CaseNo, CountyNo: f.CountyNo}
}

// Flatten projects the aggregation into records in insertion order. Class
// codes within a record are sorted; raw payloads pass through untouched.
func Flatten(agg *Aggregated) []FlatCase {
	if agg == nil {
		return []FlatCase{}
	}

	out := make([]FlatCase, 0, agg.Len())
	for _, c := range agg.All() {
		s := c.Summary
		var filing *string
		if s.FilingDate != nil {
			v := s.FilingDate.Format(time.DateOnly)
			filing = &v
		}
		out = append(out, FlatCase{
			CaseNo:      s.CaseNo,
			CountyNo:    s.CountyNo,
			CountyName:  s.CountyName,
			Caption:     s.Caption,
			PartyName:   s.PartyName,
			Status:      s.Status,
			FilingDate:  filing,
			DOB:         s.DOB,
			IsDOBSealed: s.IsDOBSealed,
			ClassCodes:  c.ClassCodes(),
			Raw:         s.Raw,
		})
	}
	return out
}
