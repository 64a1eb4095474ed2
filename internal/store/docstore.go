package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"genbanote/api/internal/jpdate"
)

// ErrNotFound is returned for point reads and updates of missing documents.
var ErrNotFound = errors.New("document not found")

// DocStore is a Postgres-backed document store: point reads and writes by id,
// filtered collection queries, all-or-nothing batches, and post-commit change
// notification.
type DocStore struct {
	db  *sql.DB
	hub *hub
	now func() time.Time
}

func NewDocStore(db *sql.DB) *DocStore {
	return &DocStore{db: db, hub: newHub(), now: time.Now}
}

func (s *DocStore) DB() *sql.DB {
	return s.db
}

func (s *DocStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get reads one document.
func (s *DocStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection=$1 AND id=$2`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Doc{}, ErrNotFound
	}
	if err != nil {
		return Doc{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	data, err := decodeData(raw)
	if err != nil {
		return Doc{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return Doc{Collection: collection, ID: id, Data: data}, nil
}

// Create inserts a new document with a generated id. createdAt/updatedAt are
// stamped by the store; createdBy/updatedBy only when an actor is known.
func (s *DocStore) Create(ctx context.Context, collection string, data map[string]any, actor string) (Doc, error) {
	id := uuid.NewString()
	now := s.now()
	fields := cloneData(data)
	stamp := now.In(jpdate.JST).Format(time.RFC3339)
	fields["createdAt"] = stamp
	fields["updatedAt"] = stamp
	if actor != "" {
		fields["createdBy"] = actor
		fields["updatedBy"] = actor
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return Doc{}, fmt.Errorf("encode %s: %w", collection, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, collection, id, raw, now)
	if err != nil {
		return Doc{}, fmt.Errorf("insert %s: %w", collection, err)
	}

	doc := Doc{Collection: collection, ID: id, Data: fields}
	s.hub.dispatch(Event{Collection: collection, DocID: id, Before: nil, After: fields, At: now})
	return doc, nil
}

// Update merges a patch into an existing document. createdAt/createdBy are
// protected from overwrite; updatedAt is restamped and updatedBy is set to the
// actor, or explicit null when anonymous.
func (s *DocStore) Update(ctx context.Context, collection, id string, patch map[string]any, actor string) (Doc, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Doc{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, after, now, err := s.applyUpdate(ctx, tx, collection, id, patch, actor)
	if err != nil {
		return Doc{}, err
	}
	if err := tx.Commit(); err != nil {
		return Doc{}, fmt.Errorf("commit update %s/%s: %w", collection, id, err)
	}

	s.hub.dispatch(Event{Collection: collection, DocID: id, Before: before, After: after, At: now})
	return Doc{Collection: collection, ID: id, Data: after}, nil
}

// Delete removes a document. Deleting a missing document is ErrNotFound so
// callers can distinguish the no-op transition, which gets no event.
func (s *DocStore) Delete(ctx context.Context, collection, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, now, err := s.applyDelete(ctx, tx, collection, id)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete %s/%s: %w", collection, id, err)
	}

	s.hub.dispatch(Event{Collection: collection, DocID: id, Before: before, After: nil, At: now})
	return nil
}

// Query runs a filtered collection scan.
func (s *DocStore) Query(ctx context.Context, q Query) ([]Doc, error) {
	stmt, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	docs := make([]Doc, 0)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, id, err)
		}
		docs = append(docs, Doc{Collection: q.Collection, ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Collection, err)
	}
	return docs, nil
}

// applyUpdate runs the read-merge-write inside tx and returns before/after.
func (s *DocStore) applyUpdate(ctx context.Context, tx *sql.Tx, collection, id string, patch map[string]any, actor string) (before, after map[string]any, at time.Time, err error) {
	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection=$1 AND id=$2 FOR UPDATE`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("lock %s/%s: %w", collection, id, err)
	}
	before, err = decodeData(raw)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}

	now := s.now()
	after = cloneData(before)
	for key, value := range patch {
		// Creation metadata is write-once.
		if key == "createdAt" || key == "createdBy" {
			continue
		}
		after[key] = value
	}
	after["updatedAt"] = now.In(jpdate.JST).Format(time.RFC3339)
	if actor != "" {
		after["updatedBy"] = actor
	} else {
		after["updatedBy"] = nil
	}

	encoded, err := json.Marshal(after)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data=$3, updated_at=$4 WHERE collection=$1 AND id=$2`,
		collection, id, encoded, now); err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return before, after, now, nil
}

func (s *DocStore) applyDelete(ctx context.Context, tx *sql.Tx, collection, id string) (before map[string]any, at time.Time, err error) {
	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection=$1 AND id=$2 FOR UPDATE`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("lock %s/%s: %w", collection, id, err)
	}
	before, err = decodeData(raw)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE collection=$1 AND id=$2`,
		collection, id); err != nil {
		return nil, time.Time{}, fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return before, s.now(), nil
}

var fieldPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// buildQuery renders a Query into SQL. Field names are interpolated into the
// statement, so they are validated against a strict identifier pattern.
func buildQuery(q Query) (string, []any, error) {
	if q.Collection == "" {
		return "", nil, fmt.Errorf("query: collection is required")
	}
	where := []string{"collection = $1"}
	args := []any{q.Collection}

	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return "", nil, fmt.Errorf("query %s: invalid field %q", q.Collection, f.Field)
		}
		switch f.Op {
		case OpEqual, OpGreaterOrEqual, OpLess:
			op := f.Op
			if op == OpEqual {
				op = "="
			}
			args = append(args, stringValue(f.Value))
			where = append(where, fmt.Sprintf("data->>'%s' %s $%d", f.Field, op, len(args)))
		case OpArrayContains:
			encoded, err := json.Marshal([]any{f.Value})
			if err != nil {
				return "", nil, fmt.Errorf("query %s: encode %s: %w", q.Collection, f.Field, err)
			}
			args = append(args, string(encoded))
			where = append(where, fmt.Sprintf("data->'%s' @> $%d::jsonb", f.Field, len(args)))
		default:
			return "", nil, fmt.Errorf("query %s: unsupported op %q", q.Collection, f.Op)
		}
	}

	stmt := "SELECT id, data FROM documents WHERE " + strings.Join(where, " AND ")
	if q.OrderBy != "" {
		if !fieldPattern.MatchString(q.OrderBy) {
			return "", nil, fmt.Errorf("query %s: invalid order field %q", q.Collection, q.OrderBy)
		}
		direction := "ASC"
		if q.Descending {
			direction = "DESC"
		}
		stmt += fmt.Sprintf(" ORDER BY data->>'%s' %s", q.OrderBy, direction)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		stmt += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return stmt, args, nil
}

func stringValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case time.Time:
		return value.In(jpdate.JST).Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func decodeData(raw []byte) (map[string]any, error) {
	data := map[string]any{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document data: %w", err)
	}
	return data, nil
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+4)
	for k, v := range data {
		out[k] = v
	}
	return out
}
