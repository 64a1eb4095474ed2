package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxSchedules = "genbanote_schedules"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the schedules index.
// An unreachable server is tolerated; the health loop reconfigures on
// recovery and the caller falls back to Postgres meanwhile.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))
	m := &Meili{client: client, done: make(chan struct{})}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxSchedules, PrimaryKey: "id"}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxSchedules, err)
	}
	index := m.client.Index(idxSchedules)
	searchable := []string{"siteName", "task", "clientName", "workerNames"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxSchedules, err)
	}
	filterable := []interface{}{"done", "date"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxSchedules, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the schedules index.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}

	resp, err := m.client.Index(idxSchedules).Search(q.Text, &meili.SearchRequest{Limit: limit})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

// IndexSchedule pushes one schedule record into the index.
func (m *Meili) IndexSchedule(rec Record) error {
	if _, err := m.client.Index(idxSchedules).AddDocuments([]Record{rec}, nil); err != nil {
		m.healthy.Store(false)
		return fmt.Errorf("meilisearch index %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteSchedule removes one schedule record from the index.
func (m *Meili) DeleteSchedule(id string) error {
	if _, err := m.client.Index(idxSchedules).DeleteDocument(id, nil); err != nil {
		m.healthy.Store(false)
		return fmt.Errorf("meilisearch delete %s: %w", id, err)
	}
	return nil
}

func hitToResult(hit interface{}) Result {
	var result Result
	raw, err := json.Marshal(hit)
	if err != nil {
		return result
	}
	_ = json.Unmarshal(raw, &result)
	return result
}
