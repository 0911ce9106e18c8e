package wiscraper

import (
	"iter"
	"sort"
)

// CaseKey identifies a case across every query of a sweep
type CaseKey struct {
	CaseNo   string
	CountyNo int
}

// AggregatedCase merges every sighting of one case during a sweep.
// Summary is the row from the first query that returned the case and is never
// replaced; later sightings only add their class code.
type AggregatedCase struct {
	Summary    CaseSummary
	classCodes map[string]struct{}
}

func newAggregatedCase(summary CaseSummary) *AggregatedCase {
	return &AggregatedCase{
		Summary:    summary,
		classCodes: make(map[string]struct{}),
	}
}

// Key returns the identity of the aggregated case
func (c *AggregatedCase) Key() CaseKey { return c.Summary.Key() }

// AddClassCode records that the case was returned under code
func (c *AggregatedCase) AddClassCode(code string) {
	c.classCodes[code] = struct{}{}
}

// HasClassCode reports whether the case was returned under code
func (c *AggregatedCase) HasClassCode(code string) bool {
	_, ok := c.classCodes[code]
	return ok
}

// ClassCodes returns the observed class codes sorted ascending
func (c *AggregatedCase) ClassCodes() []string {
	out := make([]string, 0, len(c.classCodes))
	for code := range c.classCodes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Aggregated is an insertion-ordered map from CaseKey to AggregatedCase.
// Order is the order in which each key was first seen.
type Aggregated struct {
	order []CaseKey
	index map[CaseKey]*AggregatedCase
}

// NewAggregated returns an empty collection
func NewAggregated() *Aggregated {
	return &Aggregated{index: make(map[CaseKey]*AggregatedCase)}
}

// Add folds one summary into the collection (first write wins) and reports
// whether the case was new
func (a *Aggregated) Add(summary CaseSummary) bool {
	key := summary.Key()
	entry, ok := a.index[key]
	if !ok {
		entry = newAggregatedCase(summary)
		a.index[key] = entry
		a.order = append(a.order, key)
	}
	entry.AddClassCode(summary.ClassCode)
	return !ok
}

// Get looks up a case by key
func (a *Aggregated) Get(key CaseKey) (*AggregatedCase, bool) {
	entry, ok := a.index[key]
	return entry, ok
}

// Len returns the number of distinct cases
func (a *Aggregated) Len() int { return len(a.order) }

// Keys returns the case keys in insertion order
func (a *Aggregated) Keys() []CaseKey {
	return append([]CaseKey(nil), a.order...)
}

// All iterates cases in insertion order
func (a *Aggregated) All() iter.Seq2[CaseKey, *AggregatedCase] {
	return func(yield func(CaseKey, *AggregatedCase) bool) {
		for _, key := range a.order {
			if !yield(key, a.index[key]) {
				return
			}
		}
	}
}
