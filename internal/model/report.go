package model

import "github.com/ppiankov/casesweep/internal/wiscraper"

// SweepMeta describes the sweep that produced a report
type SweepMeta struct {
	RunID      string   `json:"run_id"`
	Start      string   `json:"start"`       // YYYY-MM-DD, inclusive
	End        string   `json:"end"`         // YYYY-MM-DD, inclusive
	SpanDays   int      `json:"span_days"`
	ClassCodes []string `json:"class_codes"` // in query order
	TotalCases int      `json:"total_cases"`
	Queries    int      `json:"queries"`
	Failures   []string `json:"failures,omitempty"` // best-effort sweeps only
}

// SweepReport is the JSON document written by the sweep command
type SweepReport struct {
	Meta  SweepMeta            `json:"meta"`
	Cases []wiscraper.FlatCase `json:"cases"`
}
