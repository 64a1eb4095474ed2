package store

import "time"

// Doc is a document in one collection. Data is the full field map; createdAt,
// updatedAt, createdBy and updatedBy live inside it, stamped by the store.
type Doc struct {
	Collection string
	ID         string
	Data       map[string]any
}

// Event describes one committed document transition. Before is nil when the
// document did not exist, After is nil when it no longer does.
type Event struct {
	Collection string
	DocID      string
	Before     map[string]any
	After      map[string]any
	At         time.Time
}

// Filter ops. Names follow the query surface the product grew up on.
const (
	OpEqual          = "=="
	OpGreaterOrEqual = ">="
	OpLess           = "<"
	OpArrayContains  = "array-contains"
)

// Filter constrains a top-level JSON field.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query selects documents in one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}
