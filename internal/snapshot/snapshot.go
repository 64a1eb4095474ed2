// Package snapshot appends an immutable change-log entry for every committed
// transition of a watched document: create, update, delete.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Entry is one snapshot in a document's timeline. ID is the strictly
// increasing token; Data is the full field map at capture time ("after" for
// create/update, "before" for delete).
type Entry struct {
	ID         string         `json:"id"`
	At         time.Time      `json:"at"`
	ChangeType ChangeType     `json:"changeType"`
	Data       map[string]any `json:"data"`
}

// Store persists and lists snapshot entries.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes one entry. The primary key (collection, doc_id, token) makes
// collisions an error rather than a silent overwrite.
func (s *Store) Append(ctx context.Context, collection, docID string, entry Entry) error {
	raw, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("encode snapshot %s/%s: %w", collection, docID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (collection, doc_id, token, at, change_type, data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, collection, docID, entry.ID, entry.At, string(entry.ChangeType), raw)
	if err != nil {
		return fmt.Errorf("append snapshot %s/%s: %w", collection, docID, err)
	}
	return nil
}

// List returns a document's snapshots newest-first, capped at limit.
func (s *Store) List(ctx context.Context, collection, docID string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, at, change_type, data
		FROM snapshots
		WHERE collection=$1 AND doc_id=$2
		ORDER BY at DESC, token DESC
		LIMIT $3
	`, collection, docID, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots %s/%s: %w", collection, docID, err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var changeType string
		var raw []byte
		if err := rows.Scan(&entry.ID, &entry.At, &changeType, &raw); err != nil {
			return nil, fmt.Errorf("scan snapshot %s/%s: %w", collection, docID, err)
		}
		entry.ChangeType = ChangeType(changeType)
		// A malformed data map degrades to empty rather than failing the
		// timeline; the diff engine reports its fields as added/removed.
		data := map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &data); err != nil {
				data = map[string]any{}
			}
		}
		entry.Data = data
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots %s/%s: %w", collection, docID, err)
	}
	return entries, nil
}
