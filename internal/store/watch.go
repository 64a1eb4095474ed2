package store

import (
	"log"
	"sync"
)

// WatcherFunc receives every committed document transition, in commit order
// for any single document. Watchers run after the write has committed; their
// failures are logged and never surface to the writer.
type WatcherFunc func(Event)

// Subscription delivers coalesced change ticks for one collection. C carries
// at most one pending tick; consumers re-query the collection on receipt.
type Subscription struct {
	C      <-chan struct{}
	c      chan struct{}
	cancel func()
	once   sync.Once
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

type hub struct {
	mu       sync.Mutex
	watchers []WatcherFunc
	subs     map[string]map[int]*Subscription
	nextSub  int
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]*Subscription)}
}

// Watch registers a post-commit watcher for all collections.
func (s *DocStore) Watch(fn WatcherFunc) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.watchers = append(s.hub.watchers, fn)
}

// Subscribe returns change ticks for one collection. The caller must Close the
// subscription when it stops watching.
func (s *DocStore) Subscribe(collection string) *Subscription {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	id := s.hub.nextSub
	s.hub.nextSub++

	c := make(chan struct{}, 1)
	sub := &Subscription{C: c, c: c}
	sub.cancel = func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.subs[collection], id)
	}
	if s.hub.subs[collection] == nil {
		s.hub.subs[collection] = make(map[int]*Subscription)
	}
	s.hub.subs[collection][id] = sub
	return sub
}

// dispatch fans an event out to watchers and subscribers. Runs on the writer's
// goroutine so that per-document events arrive in commit order; the lock is
// held across watcher calls to keep that ordering.
func (h *hub) dispatch(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, fn := range h.watchers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("store: watcher panic for %s/%s: %v", ev.Collection, ev.DocID, r)
				}
			}()
			fn(ev)
		}()
	}

	for _, sub := range h.subs[ev.Collection] {
		select {
		case sub.c <- struct{}{}:
		default:
			// A tick is already pending; the consumer will re-query anyway.
		}
	}
}
