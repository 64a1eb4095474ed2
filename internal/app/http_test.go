package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"genbanote/api/internal/auth"
	"genbanote/api/internal/store"
)

func newTestServer(fs *fakeStore) *httptest.Server {
	authSvc := auth.NewService(nil, []byte("test-secret"), time.Hour)
	svc := NewService(fs, func() BatchWriter { return &fakeBatch{} }, nil, nil, nil, nil, authSvc)
	return httptest.NewServer(NewHTTPServer(svc, "*").Handler())
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&fakeStore{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["ok"] != true {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestCollectionRoutes(t *testing.T) {
	fs := &fakeStore{
		queryFn: func(q store.Query) ([]store.Doc, error) {
			return []store.Doc{
				{Collection: q.Collection, ID: "c1", Data: map[string]any{"name": "社名"}},
			}, nil
		},
	}
	server := newTestServer(fs)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/clients")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["count"] != float64(1) {
		t.Fatalf("payload = %+v", payload)
	}

	resp, err = http.Post(server.URL+"/api/clients", "application/json",
		strings.NewReader(`{"name":"新規"}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeResponse(t, resp)
	if created["id"] != "new" {
		t.Fatalf("created = %+v", created)
	}
}

func TestUnknownCollectionIs404(t *testing.T) {
	server := newTestServer(&fakeStore{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/invoices")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["code"] != "UNKNOWN_COLLECTION" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestDeleteReferencedClientSurfacesConflict(t *testing.T) {
	fs := &fakeStore{
		queryFn: func(store.Query) ([]store.Doc, error) {
			return []store.Doc{{ID: "s1", Data: map[string]any{"clientId": "c1"}}}, nil
		},
	}
	server := newTestServer(fs)
	defer server.Close()

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/clients/c1", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["code"] != "HAS_DEPENDENT_SCHEDULES" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestScheduleDayQuery(t *testing.T) {
	fs := &fakeStore{
		queryFn: func(q store.Query) ([]store.Doc, error) {
			if len(q.Filters) == 1 && q.Filters[0].Field == "date" {
				return []store.Doc{
					{Collection: "schedules", ID: "s1", Data: map[string]any{"date": "2025-09-09", "siteName": "現場A"}},
				}, nil
			}
			return nil, nil
		},
	}
	server := newTestServer(fs)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/schedules?date=2025-09-09")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["count"] != float64(1) || payload["date"] != "2025-09-09" {
		t.Fatalf("payload = %+v", payload)
	}

	resp, err = http.Get(server.URL + "/api/schedules?date=not-a-date")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad date status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	server := newTestServer(&fakeStore{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/session")
	if err != nil {
		t.Fatal(err)
	}
	payload := decodeResponse(t, resp)
	if payload["authenticated"] != false {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestSessionEndpointWithToken(t *testing.T) {
	server := newTestServer(&fakeStore{})
	defer server.Close()

	token, err := auth.IssueToken([]byte("test-secret"),
		auth.Claims{Sub: "u1", Name: "棟梁", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/session", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	payload := decodeResponse(t, resp)
	if payload["authenticated"] != true || payload["userName"] != "棟梁" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestSearchEndpointWithoutBackend(t *testing.T) {
	server := newTestServer(&fakeStore{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/search?q=basement")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload := decodeResponse(t, resp)
	if payload["query"] != "basement" {
		t.Fatalf("payload = %+v", payload)
	}
	if results, ok := payload["results"].([]any); !ok || len(results) != 0 {
		t.Fatalf("results = %+v", payload["results"])
	}
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	server := newTestServer(&fakeStore{})
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/health", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("X-Request-ID = %q", got)
	}
}
