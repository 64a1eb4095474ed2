package schedule

import (
	"testing"
	"time"

	"genbanote/api/internal/jpdate"
)

func TestEffectiveDatePrecedence(t *testing.T) {
	startAt := time.Date(2025, 6, 2, 9, 0, 0, 0, jpdate.JST)
	scheduledAt := time.Date(2025, 6, 3, 9, 0, 0, 0, jpdate.JST)

	cases := []struct {
		name string
		data map[string]any
		want string
	}{
		{"startAt wins over date", map[string]any{"startAt": startAt, "date": "2025-06-01"}, "2025-06-02"},
		{"startAt wins over scheduledAt", map[string]any{"startAt": startAt, "scheduledAt": scheduledAt}, "2025-06-02"},
		{"scheduledAt wins over date", map[string]any{"scheduledAt": scheduledAt, "date": "2025-06-01"}, "2025-06-03"},
		{"date string alone", map[string]any{"date": "2025-06-01"}, "2025-06-01"},
		{"nothing present", map[string]any{"siteName": "現場A"}, ""},
		{"nil startAt falls through", map[string]any{"startAt": nil, "date": "2025-06-01"}, "2025-06-01"},
		{"unparseable winner stays empty", map[string]any{"startAt": "garbage", "date": "2025-06-01"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.data)
			if got.EffectiveDate != tc.want {
				t.Fatalf("EffectiveDate = %q, want %q", got.EffectiveDate, tc.want)
			}
		})
	}
}

func TestCompletionPrecedence(t *testing.T) {
	cases := []struct {
		name string
		data map[string]any
		want bool
	}{
		{"done true", map[string]any{"done": true}, true},
		{"done false", map[string]any{"done": false}, false},
		{"legacy complete", map[string]any{"status": "complete"}, true},
		{"legacy incomplete", map[string]any{"status": "incomplete"}, false},
		{"done true beats incomplete status", map[string]any{"done": true, "status": "incomplete"}, true},
		{"legacy || check: done false with status complete", map[string]any{"done": false, "status": "complete"}, true},
		{"both absent", map[string]any{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.data)
			if got.IsComplete != tc.want {
				t.Fatalf("IsComplete = %v, want %v", got.IsComplete, tc.want)
			}
		})
	}
}

func TestDisplayDate(t *testing.T) {
	if got := DisplayDate(Resolved{}); got != "—" {
		t.Fatalf("placeholder = %q", got)
	}
	if got := DisplayDate(Resolved{EffectiveDate: "2025-09-09"}); got != "2025年9月9日（火）" {
		t.Fatalf("DisplayDate = %q", got)
	}
}
