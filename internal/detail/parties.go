package detail

import "fmt"

// BuildParties flattens the parties of one case detail. The detail's own
// caption wins over the sweep caption.
func BuildParties(ref CaseRef, detail map[string]any) []PartyRecord {
	items, _ := detail["parties"].([]any)
	caption := ref.Caption
	if c := str(detail["caption"]); c != "" {
		caption = c
	}

	records := make([]PartyRecord, 0, len(items))
	for _, item := range items {
		party, ok := item.(map[string]any)
		if !ok {
			continue
		}
		sealed, _ := party["isDobSealed"].(bool)
		records = append(records, PartyRecord{
			CaseNo:      ref.CaseNo,
			CountyNo:    ref.CountyNo,
			CountyName:  ref.CountyName,
			Caption:     caption,
			PartyName:   firstOf(party, "name", "partyName"),
			PartyType:   firstOf(party, "type", "partyType"),
			Address:     str(party["address"]),
			DOB:         str(party["dob"]),
			IsDOBSealed: sealed,
			RoleStatus:  str(party["status"]),
		})
	}
	return records
}

func firstOf(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
