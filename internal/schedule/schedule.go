// Package schedule resolves the effective work day and completion status of a
// schedule document across the three historical field generations.
package schedule

import (
	"genbanote/api/internal/jpdate"
)

// Collection names watched by the change log.
const (
	CollectionClients   = "clients"
	CollectionSites     = "sites"
	CollectionWorkers   = "workers"
	CollectionSchedules = "schedules"
)

// Resolved is the schema-independent view of a schedule's date and status.
type Resolved struct {
	// EffectiveDate is the canonical day key, empty when no date field is
	// present or parseable.
	EffectiveDate string
	IsComplete    bool
}

// Resolve derives the effective work day and completion status from a raw
// schedule field map.
//
// Date precedence: startAt > scheduledAt > date; the first field that is
// present wins, and wins even when it fails to parse (a broken startAt must
// not silently fall back to a stale date string).
//
// Completion keeps the legacy asymmetric check done==true || status=="complete":
// a true done can never be overridden by a conflicting status, and a missing
// done with status "incomplete" stays incomplete.
func Resolve(data map[string]any) Resolved {
	return Resolved{
		EffectiveDate: effectiveDate(data),
		IsComplete:    isComplete(data),
	}
}

func effectiveDate(data map[string]any) string {
	for _, field := range []string{"startAt", "scheduledAt", "date"} {
		v, present := data[field]
		if !present || v == nil {
			continue
		}
		if key, ok := jpdate.DayKey(v); ok {
			return key
		}
		return ""
	}
	return ""
}

func isComplete(data map[string]any) bool {
	if done, ok := data["done"].(bool); ok && done {
		return true
	}
	status, _ := data["status"].(string)
	return status == "complete"
}

// DisplayDate formats the resolved day for humans; the "—" placeholder stands
// in when no date resolved.
func DisplayDate(r Resolved) string {
	if r.EffectiveDate == "" {
		return "—"
	}
	start, _, err := jpdate.DayRange(r.EffectiveDate)
	if err != nil {
		return "—"
	}
	return jpdate.FormatLong(start)
}
