// Package search finds schedules by free text: site name, task, client name,
// worker names. Meilisearch serves queries when reachable; Postgres answers
// otherwise.
package search

// Record is the data indexed for one schedule.
type Record struct {
	ID          string   `json:"id"`
	SiteName    string   `json:"siteName"`
	Task        string   `json:"task"`
	ClientName  string   `json:"clientName"`
	WorkerNames []string `json:"workerNames"`
	Date        string   `json:"date"` // canonical day key, may be empty
	Done        bool     `json:"done"`
}

// Result is a single search hit.
type Result struct {
	ID         string `json:"id"`
	SiteName   string `json:"siteName"`
	Task       string `json:"task"`
	ClientName string `json:"clientName"`
	Date       string `json:"date"`
	Done       bool   `json:"done"`
}

// Query describes a search request.
type Query struct {
	Text  string
	Limit int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a schedule search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
