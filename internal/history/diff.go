// Package history renders a document's snapshot timeline: for each snapshot,
// the fields that changed relative to the next-older one, normalized for
// humans. Reference fields resolve against the live name tables, so the
// timeline always shows current names rather than a byte-exact replay.
package history

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"genbanote/api/internal/jpdate"
)

// DefaultIgnoreKeys suppresses metadata-only noise in diffs.
var DefaultIgnoreKeys = []string{"updatedAt", "createdAt"}

// Labels maps stored field names to their display labels.
var Labels = map[string]string{
	"startAt":     "作業日(開始)",
	"endAt":       "作業日(終了)",
	"scheduledAt": "作業日（旧・単一）",
	"date":        "作業日（旧・文字列）",
	"clientId":    "取引先",
	"clientName":  "取引先（保存値）",
	"siteName":    "現場名",
	"task":        "業務内容",
	"workerIds":   "外注先",
	"workerNames": "外注先（保存名）",
	"note":        "メモ",
	"memo":        "メモ",
	"name":        "名前",
	"phone":       "電話番号",
	"done":        "完了",
	"status":      "ステータス（旧）",
}

// DiffRow is one changed field. Before/After are nil when the field is absent
// on that side.
type DiffRow struct {
	Field  string `json:"field"`
	Label  string `json:"label"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// NameTable resolves a reference id to its current display name.
type NameTable interface {
	Name(id string) (string, bool)
}

var dateTimeShape = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}`)

// Normalize converts a stored value into its comparable display form.
func Normalize(key string, value any, clients, workers NameTable) any {
	if value == nil {
		return nil
	}
	switch key {
	case "startAt", "endAt", "scheduledAt", "date":
		if day, ok := jpdate.DayKey(value); ok {
			return day
		}
		return value
	case "clientId":
		if id, ok := value.(string); ok {
			if name, found := lookupName(clients, id); found {
				return fmt.Sprintf("%s (%s)", name, id)
			}
			return id
		}
	case "workerIds":
		if ids, ok := stringSlice(value); ok {
			names := make([]string, len(ids))
			for i, id := range ids {
				if name, found := lookupName(workers, id); found {
					names[i] = name
				} else {
					names[i] = id
				}
			}
			return strings.Join(names, "、")
		}
	}

	if t, ok := timestampShaped(value); ok {
		return jpdate.FormatDateTime(t)
	}

	switch value.(type) {
	case map[string]any, []any, []string:
		if raw, err := json.Marshal(value); err == nil {
			return string(raw)
		}
	}
	return value
}

// ComputeDiff lists the fields whose normalized forms differ between the
// current and the previous (older) field map, excluding the ignore-set.
// A nil previous map means no prior snapshot: the diff is empty and the
// caller renders the full normalized map instead.
func ComputeDiff(curr, prev map[string]any, ignore []string, normalize func(key string, value any) any) []DiffRow {
	if prev == nil {
		return nil
	}
	ignored := make(map[string]bool, len(ignore))
	for _, key := range ignore {
		ignored[key] = true
	}

	keySet := make(map[string]bool, len(curr)+len(prev))
	for key := range curr {
		keySet[key] = true
	}
	for key := range prev {
		keySet[key] = true
	}
	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		if !ignored[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	diffs := make([]DiffRow, 0)
	for _, key := range keys {
		var after, before any
		if raw, present := curr[key]; present {
			after = normalize(key, raw)
		}
		if raw, present := prev[key]; present {
			before = normalize(key, raw)
		}
		if !equalNormalized(before, after) {
			diffs = append(diffs, DiffRow{Field: key, Label: labelFor(key), Before: before, After: after})
		}
	}
	return diffs
}

func labelFor(key string) string {
	if label, ok := Labels[key]; ok {
		return label
	}
	return key
}

// equalNormalized compares by serialized form: two values are equal iff their
// normalized representations marshal identically.
func equalNormalized(a, b any) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return errA == nil && errB == nil
	}
	return string(rawA) == string(rawB)
}

func lookupName(table NameTable, id string) (string, bool) {
	if table == nil {
		return "", false
	}
	name, ok := table.Name(id)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func stringSlice(value any) ([]string, bool) {
	switch list := value.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func timestampShaped(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case map[string]any:
		if _, ok := v["seconds"]; ok {
			return jpdate.ParseAny(v)
		}
	case string:
		if dateTimeShape.MatchString(v) {
			return jpdate.ParseAny(v)
		}
	}
	return time.Time{}, false
}
