package store

import (
	"context"
	"fmt"
)

type batchOp struct {
	kind  string // "update" or "delete"
	col   string
	id    string
	patch map[string]any
	actor string
}

// Batch accumulates writes that commit in a single transaction. Either every
// operation applies or none does; change events fire only after the commit.
type Batch struct {
	store *DocStore
	ops   []batchOp
}

func (s *DocStore) Batch() *Batch {
	return &Batch{store: s}
}

func (b *Batch) Update(collection, id string, patch map[string]any, actor string) {
	b.ops = append(b.ops, batchOp{kind: "update", col: collection, id: id, patch: patch, actor: actor})
}

func (b *Batch) Delete(collection, id string) {
	b.ops = append(b.ops, batchOp{kind: "delete", col: collection, id: id})
}

func (b *Batch) Len() int {
	return len(b.ops)
}

// Commit applies every queued operation atomically, then dispatches the
// resulting events in queue order.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	events := make([]Event, 0, len(b.ops))
	for _, op := range b.ops {
		switch op.kind {
		case "update":
			before, after, at, err := b.store.applyUpdate(ctx, tx, op.col, op.id, op.patch, op.actor)
			if err != nil {
				return fmt.Errorf("batch update %s/%s: %w", op.col, op.id, err)
			}
			events = append(events, Event{Collection: op.col, DocID: op.id, Before: before, After: after, At: at})
		case "delete":
			before, at, err := b.store.applyDelete(ctx, tx, op.col, op.id)
			if err != nil {
				return fmt.Errorf("batch delete %s/%s: %w", op.col, op.id, err)
			}
			events = append(events, Event{Collection: op.col, DocID: op.id, Before: before, After: nil, At: at})
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	for _, ev := range events {
		b.store.hub.dispatch(ev)
	}
	return nil
}
