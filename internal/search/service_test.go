package search

import (
	"errors"
	"testing"
)

type stubSearcher struct {
	results []Result
	err     error
	calls   int
}

func (s *stubSearcher) Search(Query) ([]Result, int, error) {
	s.calls++
	return s.results, len(s.results), s.err
}

func (s *stubSearcher) Healthy() bool { return true }

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	fallback := &stubSearcher{results: []Result{{ID: "s1", SiteName: "現場A"}}}
	svc := NewService(nil, fallback)

	resp := svc.Search(Query{Text: "現場"})
	if fallback.calls != 1 {
		t.Fatalf("fallback calls = %d", fallback.calls)
	}
	if resp.Total != 1 || resp.Results[0].ID != "s1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Query != "現場" {
		t.Fatalf("query echo = %q", resp.Query)
	}
}

func TestServiceFallbackErrorYieldsEmptyResponse(t *testing.T) {
	svc := NewService(nil, &stubSearcher{err: errors.New("db down")})
	resp := svc.Search(Query{Text: "現場"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_done\`); got != `50\%\_done\\` {
		t.Fatalf("escapeLike = %q", got)
	}
}
