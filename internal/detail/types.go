// Package detail loads case detail pages in a browser and turns them into
// party records. The portal renders details client-side, so the JSON the
// page keeps in sessionStorage is read first and the rendered HTML is the
// fallback.
package detail

import "github.com/ppiankov/casesweep/internal/wiscraper"

// Detail sources recorded on each envelope
const (
	SourceSessionStorage = "session_storage"
	SourceHTML           = "html"
)

// CaseRef identifies one case to open
type CaseRef struct {
	CaseNo      string `json:"case_no"`
	CountyNo    int    `json:"county_no"`
	CountyName  string `json:"county_name"`
	Caption     string `json:"caption"`
	ResultIndex int    `json:"result_index"` // position in the sweep output
}

// RefsFromFlat numbers flattened sweep records in output order
func RefsFromFlat(cases []wiscraper.FlatCase) []CaseRef {
	refs := make([]CaseRef, len(cases))
	for i, c := range cases {
		refs[i] = CaseRef{
			CaseNo:      c.CaseNo,
			CountyNo:    c.CountyNo,
			CountyName:  c.CountyName,
			Caption:     c.Caption,
			ResultIndex: i,
		}
	}
	return refs
}

// PartyRecord is one party of one case, flattened for CSV
type PartyRecord struct {
	CaseNo      string `json:"case_no"`
	CountyNo    int    `json:"county_no"`
	CountyName  string `json:"county_name"`
	Caption     string `json:"caption"`
	PartyName   string `json:"party_name"`
	PartyType   string `json:"party_type"`
	Address     string `json:"address"`
	DOB         string `json:"dob"`
	IsDOBSealed bool   `json:"is_dob_sealed"`
	RoleStatus  string `json:"role_status"`
}

// PartyColumns is the CSV header, in field order
var PartyColumns = []string{
	"case_no", "county_no", "county_name", "caption", "party_name",
	"party_type", "address", "dob", "is_dob_sealed", "role_status",
}

// Envelope is the outcome for one case. Error is set instead of Detail when
// the page could not be read.
type Envelope struct {
	Case    CaseRef        `json:"case"`
	Detail  map[string]any `json:"detail"`
	Parties []PartyRecord  `json:"parties"`
	Source  string         `json:"source,omitempty"`
	Error   string         `json:"error,omitempty"`
}
