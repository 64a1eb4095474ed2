// Package holiday resolves Japanese public holidays per calendar year from
// the holidays-jp JSON API, cached for a day.
package holiday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultBaseURL = "https://holidays-jp.github.io"

// ErrYearOutOfRange marks a year the upstream dataset cannot cover.
var ErrYearOutOfRange = errors.New("holiday: year out of range")

// Service caches year→holiday-day-keys in Redis when available, with an
// in-process fallback cache so a missing Redis only costs extra upstream
// fetches, never correctness.
type Service struct {
	redis   *redis.Client
	client  *http.Client
	baseURL string
	ttl     time.Duration

	mu   sync.Mutex
	memo map[int]memoEntry
}

type memoEntry struct {
	days    []string
	expires time.Time
}

// New creates a holiday service. redisClient may be nil.
func New(redisClient *redis.Client, baseURL string) *Service {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Service{
		redis:   redisClient,
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		ttl:     24 * time.Hour,
		memo:    map[int]memoEntry{},
	}
}

// Days returns the public-holiday day keys for a year, sorted ascending.
func (s *Service) Days(ctx context.Context, year int) ([]string, error) {
	if year < 1948 || year > 2200 {
		return nil, fmt.Errorf("%w: %d", ErrYearOutOfRange, year)
	}

	if days, ok := s.fromMemo(year); ok {
		return days, nil
	}
	if days, ok := s.fromRedis(ctx, year); ok {
		s.storeMemo(year, days)
		return days, nil
	}

	days, err := s.fetch(ctx, year)
	if err != nil {
		return nil, err
	}
	s.storeMemo(year, days)
	s.storeRedis(ctx, year, days)
	return days, nil
}

func (s *Service) fetch(ctx context.Context, year int) ([]string, error) {
	url := fmt.Sprintf("%s/api/v1/%d/date.json", s.baseURL, year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("holiday: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("holiday: fetch %d: %w", year, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("holiday: fetch %d: unexpected status %d", year, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("holiday: read %d: %w", year, err)
	}
	var byDate map[string]string
	if err := json.Unmarshal(body, &byDate); err != nil {
		return nil, fmt.Errorf("holiday: decode %d: %w", year, err)
	}

	days := make([]string, 0, len(byDate))
	for day := range byDate {
		days = append(days, day)
	}
	sort.Strings(days)
	return days, nil
}

func (s *Service) fromMemo(year int) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.memo[year]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.days, true
}

func (s *Service) storeMemo(year int, days []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memo[year] = memoEntry{days: days, expires: time.Now().Add(s.ttl)}
}

func (s *Service) fromRedis(ctx context.Context, year int) ([]string, bool) {
	if s.redis == nil {
		return nil, false
	}
	raw, err := s.redis.Get(ctx, redisKey(year)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("holiday: redis get %d: %v", year, err)
		}
		return nil, false
	}
	var days []string
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, false
	}
	return days, true
}

func (s *Service) storeRedis(ctx context.Context, year int, days []string) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(days)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, redisKey(year), raw, s.ttl).Err(); err != nil {
		log.Printf("holiday: redis set %d: %v", year, err)
	}
}

func redisKey(year int) string {
	return fmt.Sprintf("holidays:%d", year)
}
