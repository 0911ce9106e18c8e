package detail

import (
	"encoding/json"
	"slices"
	"strings"
)

// UnwrapCaseDetail digs the case detail object out of a sessionStorage
// payload. It follows caseDetail first, accepts any object holding parties
// or records, and otherwise descends through result, detail and data.
func UnwrapCaseDetail(v any) map[string]any {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if inner, ok := obj["caseDetail"].(map[string]any); ok {
		return UnwrapCaseDetail(inner)
	}
	_, hasParties := obj["parties"]
	_, hasRecords := obj["records"]
	if hasParties || hasRecords {
		return obj
	}
	for _, key := range []string{"result", "detail", "data"} {
		if inner, ok := obj[key]; ok {
			if found := UnwrapCaseDetail(inner); found != nil {
				return found
			}
		}
	}
	return nil
}

// FromSessionStorage returns the first case detail found among the stored
// values. Keys are visited in sorted order; values that are empty or not
// JSON are skipped.
func FromSessionStorage(storage map[string]string) (map[string]any, bool) {
	keys := make([]string, 0, len(storage))
	for k := range storage {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		raw := strings.TrimSpace(storage[k])
		if raw == "" {
			continue
		}
		var payload any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			continue
		}
		if found := UnwrapCaseDetail(payload); found != nil {
			return found, true
		}
	}
	return nil, false
}
