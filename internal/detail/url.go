package detail

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// CaseDetailURL builds the caseDetail.html link. A negative index omits the
// advanced-search navigation parameters.
func CaseDetailURL(base, caseNo string, countyNo, index int) string {
	link := fmt.Sprintf("%s/caseDetail.html?caseNo=%s&countyNo=%d",
		strings.TrimRight(base, "/"), url.QueryEscape(caseNo), countyNo)
	if index >= 0 {
		link += fmt.Sprintf("&index=%d&isAdvanced=true", index)
	}
	return link
}

// CaseIdentifiers reads caseNo and countyNo back out of a detail URL
func CaseIdentifiers(rawURL string) (caseNo string, countyNo int, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, false
	}
	q := u.Query()
	caseNo = q.Get("caseNo")
	if caseNo == "" {
		return "", 0, false
	}
	countyNo, err = strconv.Atoi(q.Get("countyNo"))
	if err != nil {
		return caseNo, 0, false
	}
	return caseNo, countyNo, true
}
