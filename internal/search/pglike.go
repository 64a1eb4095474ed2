package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"genbanote/api/internal/schedule"
)

// PgLike implements Searcher with ILIKE scans over the schedules JSONB
// documents. Slower than Meilisearch but always available.
type PgLike struct {
	db *sql.DB
}

func NewPgLike(db *sql.DB) *PgLike {
	return &PgLike{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgLike) Healthy() bool {
	return true
}

func (p *PgLike) Search(q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pattern := "%" + escapeLike(text) + "%"
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, data, COUNT(*) OVER () AS total
		FROM documents
		WHERE collection = 'schedules' AND (
			data->>'siteName' ILIKE $1
			OR data->>'task' ILIKE $1
			OR data->>'clientName' ILIKE $1
			OR data->>'workerNames' ILIKE $1
		)
		ORDER BY updated_at DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("pglike search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	total := 0
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw, &total); err != nil {
			return nil, 0, fmt.Errorf("pglike scan: %w", err)
		}
		data := map[string]any{}
		if err := json.Unmarshal(raw, &data); err != nil {
			continue
		}
		resolved := schedule.Resolve(data)
		results = append(results, Result{
			ID:         id,
			SiteName:   stringField(data, "siteName"),
			Task:       stringField(data, "task"),
			ClientName: stringField(data, "clientName"),
			Date:       resolved.EffectiveDate,
			Done:       resolved.IsComplete,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pglike iterate: %w", err)
	}
	return results, total, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
