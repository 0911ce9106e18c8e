package detail

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractHTML reads case details from a rendered caseDetail page. Parties
// come from the #parties blocks; when there are none, a summary table whose
// header mentions party, type, name and status is used instead.
func ExtractHTML(pageURL, html string) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse detail html: %w", err)
	}

	detail := map[string]any{"source": SourceHTML}
	if caption := text(doc.Find("h1, .caption, [class*='caption']").First()); caption != "" {
		detail["caption"] = caption
	}
	if caseNo, countyNo, ok := CaseIdentifiers(pageURL); ok {
		detail["caseNo"] = caseNo
		detail["countyNo"] = countyNo
	}

	parties := partiesFromBlocks(doc)
	if len(parties) == 0 {
		parties = partiesFromSummaryTable(doc)
	}
	detail["parties"] = parties
	return detail, nil
}

func partiesFromBlocks(doc *goquery.Document) []any {
	var parties []any
	doc.Find("#parties .party").Each(func(_ int, block *goquery.Selection) {
		header := text(block.Find("h5.detailHeader").First())
		if header == "" {
			return
		}
		partyType, name := "", header
		if before, after, ok := strings.Cut(header, ":"); ok {
			partyType, name = strings.TrimSpace(before), strings.TrimSpace(after)
		}
		if len(name) < 2 {
			return
		}

		details := block.Find(".partyDetail")
		if details.Length() == 0 {
			details = block
		}
		parties = append(parties, map[string]any{
			"name":    name,
			"type":    partyType,
			"address": definition(details, "Address"),
			"dob":     definition(details, "Date of birth"),
			"status":  "",
		})
	})
	return parties
}

// definition returns the dd text of the first dl whose dt contains term
func definition(s *goquery.Selection, term string) string {
	var out string
	s.Find("dl").EachWithBreak(func(_ int, dl *goquery.Selection) bool {
		if !strings.Contains(text(dl.Find("dt")), term) {
			return true
		}
		out = text(dl.Find("dd").First())
		return false
	})
	return out
}

func partiesFromSummaryTable(doc *goquery.Document) []any {
	var parties []any
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() == 0 {
			return true
		}
		var headers []string
		rows.First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, text(cell))
		})
		h := strings.ToLower(strings.Join(headers, " "))
		for _, want := range []string{"party", "type", "name", "status"} {
			if !strings.Contains(h, want) {
				return true
			}
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 3 {
				return
			}
			name := text(cells.Eq(1))
			if len(name) < 2 {
				return
			}
			parties = append(parties, map[string]any{
				"name":    name,
				"type":    text(cells.Eq(0)),
				"address": "",
				"dob":     "",
				"status":  text(cells.Eq(2)),
			})
		})
		return false
	})
	return parties
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
