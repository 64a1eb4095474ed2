package lookup

import (
	"context"
	"sync"
	"testing"
	"time"

	"genbanote/api/internal/store"
)

type fakeSource struct {
	mu     sync.Mutex
	docs   []store.Doc
	broker *store.DocStore
}

func (f *fakeSource) Query(context.Context, store.Query) ([]store.Doc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs, nil
}

func (f *fakeSource) Subscribe(collection string) *store.Subscription {
	return f.broker.Subscribe(collection)
}

func (f *fakeSource) set(docs []store.Doc) {
	f.mu.Lock()
	f.docs = docs
	f.mu.Unlock()
}

func TestTableInitialLoad(t *testing.T) {
	src := &fakeSource{broker: store.NewDocStore(nil)}
	src.set([]store.Doc{
		{Collection: "clients", ID: "c1", Data: map[string]any{"name": "山田建設"}},
		{Collection: "clients", ID: "c2", Data: map[string]any{"name": "田中工務店"}},
	})

	table, err := NewTable(context.Background(), src, "clients")
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	if name, ok := table.Name("c1"); !ok || name != "山田建設" {
		t.Fatalf("Name(c1) = %q, %v", name, ok)
	}
	if _, ok := table.Name("ghost"); ok {
		t.Fatal("unknown id must not resolve")
	}
	if table.Len() != 2 {
		t.Fatalf("Len = %d", table.Len())
	}
}

func TestTableRebuildsOnTick(t *testing.T) {
	src := &fakeSource{broker: store.NewDocStore(nil)}
	src.set([]store.Doc{{Collection: "workers", ID: "w1", Data: map[string]any{"name": "佐藤"}}})

	table, err := NewTable(context.Background(), src, "workers")
	if err != nil {
		t.Fatal(err)
	}
	defer table.Close()

	src.set([]store.Doc{{Collection: "workers", ID: "w1", Data: map[string]any{"name": "佐藤（改名）"}}})
	// Direct rebuild exercises the same path the tick loop takes; the loop's
	// delivery itself is covered by the store subscription tests.
	if err := table.rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	if name, _ := table.Name("w1"); name != "佐藤（改名）" {
		t.Fatalf("Name after rebuild = %q", name)
	}
}

func TestTableCloseIsIdempotent(t *testing.T) {
	src := &fakeSource{broker: store.NewDocStore(nil)}
	table, err := NewTable(context.Background(), src, "clients")
	if err != nil {
		t.Fatal(err)
	}
	table.Close()
	table.Close()

	// The follow goroutine must have exited; a late tick is simply dropped.
	time.Sleep(10 * time.Millisecond)
}
