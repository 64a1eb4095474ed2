package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"genbanote/api/internal/store"
)

type recordingAppender struct {
	entries []Entry
	cols    []string
	err     error
}

func (r *recordingAppender) Append(_ context.Context, collection, docID string, entry Entry) error {
	if r.err != nil {
		return r.err
	}
	r.cols = append(r.cols, collection+"/"+docID)
	r.entries = append(r.entries, entry)
	return nil
}

func TestCaptureTransitionTable(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	before := map[string]any{"siteName": "旧現場"}
	after := map[string]any{"siteName": "新現場"}

	cases := []struct {
		name     string
		ev       store.Event
		wantType ChangeType
		wantData map[string]any
		wantSkip bool
	}{
		{"create captures after", store.Event{Collection: "schedules", DocID: "s1", After: after, At: at}, ChangeCreate, after, false},
		{"update captures after", store.Event{Collection: "schedules", DocID: "s1", Before: before, After: after, At: at}, ChangeUpdate, after, false},
		{"delete captures before", store.Event{Collection: "schedules", DocID: "s1", Before: before, At: at}, ChangeDelete, before, false},
		{"both absent is a no-op", store.Event{Collection: "schedules", DocID: "s1", At: at}, "", nil, true},
		{"unwatched collection ignored", store.Event{Collection: "users", DocID: "u1", After: after, At: at}, "", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recordingAppender{}
			c := NewCapture(rec, "clients", "sites", "workers", "schedules")
			c.Handle(tc.ev)
			if tc.wantSkip {
				if len(rec.entries) != 0 {
					t.Fatalf("expected no snapshot, got %v", rec.entries)
				}
				return
			}
			if len(rec.entries) != 1 {
				t.Fatalf("expected one snapshot, got %d", len(rec.entries))
			}
			entry := rec.entries[0]
			if entry.ChangeType != tc.wantType {
				t.Fatalf("changeType = %s, want %s", entry.ChangeType, tc.wantType)
			}
			if entry.Data["siteName"] != tc.wantData["siteName"] {
				t.Fatalf("data = %v, want %v", entry.Data, tc.wantData)
			}
			if !entry.At.Equal(at) {
				t.Fatalf("at = %v, want %v", entry.At, at)
			}
		})
	}
}

func TestCaptureSwallowsAppendFailure(t *testing.T) {
	rec := &recordingAppender{err: errors.New("storage down")}
	c := NewCapture(rec, "schedules")
	// Must not panic and must not propagate anything.
	c.Handle(store.Event{Collection: "schedules", DocID: "s1", After: map[string]any{"task": "解体"}, At: time.Now()})
}

func TestTokensStrictlyIncreasingSameMillisecond(t *testing.T) {
	g := tokenGenerator{last: make(map[string]lastToken)}
	at := time.UnixMilli(1717200000000)

	first := g.next("schedules/s1", at)
	second := g.next("schedules/s1", at)
	third := g.next("schedules/s1", at)

	if first != "1717200000000" {
		t.Fatalf("first token = %q", first)
	}
	if !(first < second && second < third) {
		t.Fatalf("tokens not lexicographically increasing: %q %q %q", first, second, third)
	}

	// The next real millisecond must still sort after every suffixed token.
	later := g.next("schedules/s1", at.Add(time.Millisecond))
	if !(third < later) {
		t.Fatalf("suffixed token %q must sort before next-millisecond %q", third, later)
	}
}

func TestTokensClockGoingBackwardsStillIncreases(t *testing.T) {
	g := tokenGenerator{last: make(map[string]lastToken)}
	first := g.next("schedules/s1", time.UnixMilli(1717200000005))
	second := g.next("schedules/s1", time.UnixMilli(1717200000001))
	if !(first < second) {
		t.Fatalf("expected %q < %q", first, second)
	}
}

func TestTokensIndependentPerDocument(t *testing.T) {
	g := tokenGenerator{last: make(map[string]lastToken)}
	at := time.UnixMilli(1717200000000)
	a := g.next("schedules/a", at)
	b := g.next("schedules/b", at)
	if a != b {
		t.Fatalf("independent documents may share the bare token: %q vs %q", a, b)
	}
}
