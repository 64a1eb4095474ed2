package snapshot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"genbanote/api/internal/store"
)

// Appender is the slice of Store the capture path needs.
type Appender interface {
	Append(ctx context.Context, collection, docID string, entry Entry) error
}

// Capture turns post-commit document events into snapshot entries for the
// watched collections. It never fails the triggering write: the write has
// already committed when Capture runs, so persistence errors are logged and
// swallowed.
type Capture struct {
	appender Appender
	watched  map[string]bool
	tokens   tokenGenerator
	timeout  time.Duration
}

func NewCapture(appender Appender, collections ...string) *Capture {
	watched := make(map[string]bool, len(collections))
	for _, c := range collections {
		watched[c] = true
	}
	return &Capture{
		appender: appender,
		watched:  watched,
		tokens:   tokenGenerator{last: make(map[string]lastToken)},
		timeout:  5 * time.Second,
	}
}

// Handle is registered as a store watcher.
func (c *Capture) Handle(ev store.Event) {
	if !c.watched[ev.Collection] {
		return
	}
	entry, ok := c.classify(ev)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.appender.Append(ctx, ev.Collection, ev.DocID, entry); err != nil {
		log.Printf("snapshot: capture %s/%s %s failed: %v", ev.Collection, ev.DocID, entry.ChangeType, err)
	}
}

// classify applies the transition table. Both sides absent is a no-op that
// must not occur in practice; if observed, nothing is written.
func (c *Capture) classify(ev store.Event) (Entry, bool) {
	var changeType ChangeType
	var data map[string]any
	switch {
	case ev.Before == nil && ev.After != nil:
		changeType, data = ChangeCreate, ev.After
	case ev.Before != nil && ev.After != nil:
		changeType, data = ChangeUpdate, ev.After
	case ev.Before != nil && ev.After == nil:
		changeType, data = ChangeDelete, ev.Before
	default:
		return Entry{}, false
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return Entry{
		ID:         c.tokens.next(ev.Collection+"/"+ev.DocID, at),
		At:         at,
		ChangeType: changeType,
		Data:       data,
	}, true
}

type lastToken struct {
	millis int64
	seq    int
}

// tokenGenerator issues per-document tokens that are strictly increasing both
// in time order and in lexicographic order. The base token is the millisecond
// wall clock; a same-millisecond collision gets a "-NN" suffix, which sorts
// after the bare token and before the next millisecond because '-' precedes
// every digit in ASCII.
type tokenGenerator struct {
	mu   sync.Mutex
	last map[string]lastToken
}

func (g *tokenGenerator) next(key string, at time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	millis := at.UnixMilli()
	prev := g.last[key]
	seq := 0
	if millis <= prev.millis {
		millis = prev.millis
		seq = prev.seq + 1
	}
	g.last[key] = lastToken{millis: millis, seq: seq}

	token := strconv.FormatInt(millis, 10)
	if seq > 0 {
		token += fmt.Sprintf("-%02d", seq)
	}
	return token
}
