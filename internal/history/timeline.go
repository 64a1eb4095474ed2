package history

import (
	"context"
	"fmt"
	"time"

	"genbanote/api/internal/snapshot"
)

// Lister is the slice of the snapshot store the timeline needs.
type Lister interface {
	List(ctx context.Context, collection, docID string, limit int) ([]snapshot.Entry, error)
}

// TimelineEntry is one snapshot with its diff against the next-older one.
// Display carries the full normalized field map (keyed by label) when there is
// nothing to diff against, matching how the timeline is rendered.
type TimelineEntry struct {
	ID         string              `json:"id"`
	At         time.Time           `json:"at"`
	ChangeType snapshot.ChangeType `json:"changeType"`
	Diffs      []DiffRow           `json:"diffs"`
	Display    map[string]any      `json:"display,omitempty"`
}

// Engine loads snapshot sequences and computes display-ready timelines.
type Engine struct {
	snapshots  Lister
	clients    NameTable
	workers    NameTable
	pageSize   int
	ignoreKeys []string
}

func NewEngine(snapshots Lister, clients, workers NameTable, pageSize int) *Engine {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Engine{
		snapshots:  snapshots,
		clients:    clients,
		workers:    workers,
		pageSize:   pageSize,
		ignoreKeys: DefaultIgnoreKeys,
	}
}

// Timeline returns the newest-first snapshot sequence for one document, each
// entry carrying its field-level diff.
func (e *Engine) Timeline(ctx context.Context, collection, docID string) ([]TimelineEntry, error) {
	entries, err := e.snapshots.List(ctx, collection, docID, e.pageSize)
	if err != nil {
		return nil, fmt.Errorf("load timeline %s/%s: %w", collection, docID, err)
	}

	normalize := func(key string, value any) any {
		return Normalize(key, value, e.clients, e.workers)
	}

	out := make([]TimelineEntry, 0, len(entries))
	for i, entry := range entries {
		var prev map[string]any
		if i+1 < len(entries) {
			prev = entries[i+1].Data
			if prev == nil {
				prev = map[string]any{}
			}
		}
		row := TimelineEntry{
			ID:         entry.ID,
			At:         entry.At,
			ChangeType: entry.ChangeType,
			Diffs:      ComputeDiff(entry.Data, prev, e.ignoreKeys, normalize),
		}
		if len(row.Diffs) == 0 {
			row.Display = displayMap(entry.Data, normalize)
		}
		out = append(out, row)
	}
	return out, nil
}

func displayMap(data map[string]any, normalize func(key string, value any) any) map[string]any {
	display := make(map[string]any, len(data))
	for key, value := range data {
		display[labelFor(key)] = normalize(key, value)
	}
	return display
}
