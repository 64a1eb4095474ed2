// Package lookup maintains read-only id→name tables for the clients and
// workers collections, rebuilt whenever the underlying collection changes.
// Readers always see the most recent completed rebuild; a rename may briefly
// show a stale label, which callers tolerate.
package lookup

import (
	"context"
	"log"
	"sync"
	"time"

	"genbanote/api/internal/store"
)

// Source is the slice of the document store a table needs.
type Source interface {
	Query(ctx context.Context, q store.Query) ([]store.Doc, error)
	Subscribe(collection string) *store.Subscription
}

// Table is a live name map for one collection.
type Table struct {
	source     Source
	collection string

	mu    sync.RWMutex
	names map[string]string

	sub  *store.Subscription
	done chan struct{}
	once sync.Once
}

// NewTable loads the initial map and starts following collection changes.
// Close releases the subscription.
func NewTable(ctx context.Context, source Source, collection string) (*Table, error) {
	t := &Table{
		source:     source,
		collection: collection,
		names:      map[string]string{},
		done:       make(chan struct{}),
	}
	if err := t.rebuild(ctx); err != nil {
		return nil, err
	}
	t.sub = source.Subscribe(collection)
	go t.follow(t.sub.C)
	return t, nil
}

// Name returns the current display name for an id.
func (t *Table) Name(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.names[id]
	return name, ok
}

// Len reports how many names are loaded.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}

// Close stops following changes. Safe to call more than once.
func (t *Table) Close() {
	t.once.Do(func() {
		close(t.done)
		if t.sub != nil {
			t.sub.Close()
		}
	})
}

func (t *Table) follow(ticks <-chan struct{}) {
	for {
		select {
		case <-t.done:
			return
		case <-ticks:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := t.rebuild(ctx); err != nil {
				// Keep serving the previous map; the next tick retries.
				log.Printf("lookup: rebuild %s failed: %v", t.collection, err)
			}
			cancel()
		}
	}
}

func (t *Table) rebuild(ctx context.Context) error {
	docs, err := t.source.Query(ctx, store.Query{Collection: t.collection, OrderBy: "name"})
	if err != nil {
		return err
	}
	names := make(map[string]string, len(docs))
	for _, doc := range docs {
		name, _ := doc.Data["name"].(string)
		names[doc.ID] = name
	}

	t.mu.Lock()
	t.names = names
	t.mu.Unlock()
	return nil
}
