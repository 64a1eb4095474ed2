package holiday

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func fakeUpstream(t *testing.T, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/2025/date.json" {
			http.NotFound(w, r)
			return
		}
		*hits++
		_, _ = w.Write([]byte(`{"2025-01-01":"元日","2025-02-11":"建国記念の日","2025-01-13":"成人の日"}`))
	}))
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestDaysFetchesSortedDayKeys(t *testing.T) {
	var hits int
	upstream := fakeUpstream(t, &hits)
	defer upstream.Close()

	svc := New(newRedisClient(t), upstream.URL)
	days, err := svc.Days(context.Background(), 2025)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2025-01-01", "2025-01-13", "2025-02-11"}
	if len(days) != len(want) {
		t.Fatalf("days = %v", days)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Fatalf("days = %v, want %v", days, want)
		}
	}
}

func TestDaysCachedAfterFirstFetch(t *testing.T) {
	var hits int
	upstream := fakeUpstream(t, &hits)
	svc := New(newRedisClient(t), upstream.URL)

	if _, err := svc.Days(context.Background(), 2025); err != nil {
		t.Fatal(err)
	}
	upstream.Close() // upstream gone; cache must answer

	days, err := svc.Days(context.Background(), 2025)
	if err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Fatalf("expected a single upstream hit, got %d", hits)
	}
	if len(days) != 3 {
		t.Fatalf("days = %v", days)
	}
}

func TestDaysRedisSurvivesProcessMemoExpiry(t *testing.T) {
	var hits int
	upstream := fakeUpstream(t, &hits)
	defer upstream.Close()

	svc := New(newRedisClient(t), upstream.URL)
	if _, err := svc.Days(context.Background(), 2025); err != nil {
		t.Fatal(err)
	}

	// Drop the in-process memo; Redis should still serve the year.
	svc.mu.Lock()
	svc.memo = map[int]memoEntry{}
	svc.mu.Unlock()

	if _, err := svc.Days(context.Background(), 2025); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Fatalf("expected redis hit, got %d upstream hits", hits)
	}
}

func TestDaysWorksWithoutRedis(t *testing.T) {
	var hits int
	upstream := fakeUpstream(t, &hits)
	defer upstream.Close()

	svc := New(nil, upstream.URL)
	if _, err := svc.Days(context.Background(), 2025); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Days(context.Background(), 2025); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Fatalf("memo cache should absorb the second call, got %d hits", hits)
	}
}

func TestDaysRejectsImplausibleYears(t *testing.T) {
	svc := New(nil, "http://unused.invalid")
	if _, err := svc.Days(context.Background(), 1800); err == nil {
		t.Fatal("expected error for out-of-range year")
	}
}

func TestMemoEntryExpires(t *testing.T) {
	svc := New(nil, "http://unused.invalid")
	svc.mu.Lock()
	svc.memo[2025] = memoEntry{days: []string{"2025-01-01"}, expires: time.Now().Add(-time.Minute)}
	svc.mu.Unlock()
	if _, ok := svc.fromMemo(2025); ok {
		t.Fatal("expired memo entry must not be served")
	}
}
