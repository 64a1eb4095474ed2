package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"genbanote/api/internal/auth"
	"genbanote/api/internal/history"
	"genbanote/api/internal/holiday"
	"genbanote/api/internal/jpdate"
	"genbanote/api/internal/schedule"
	"genbanote/api/internal/search"
	"genbanote/api/internal/store"
)

// DataStore is the slice of the document store the service needs.
type DataStore interface {
	Get(ctx context.Context, collection, id string) (store.Doc, error)
	Create(ctx context.Context, collection string, data map[string]any, actor string) (store.Doc, error)
	Update(ctx context.Context, collection, id string, patch map[string]any, actor string) (store.Doc, error)
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q store.Query) ([]store.Doc, error)
	Ping(ctx context.Context) error
}

// BatchWriter accumulates writes that commit atomically.
type BatchWriter interface {
	Update(collection, id string, patch map[string]any, actor string)
	Delete(collection, id string)
	Len() int
	Commit(ctx context.Context) error
}

// Archiver exports a document's timeline to object storage.
type Archiver interface {
	ExportTimeline(ctx context.Context, collection, docID string, entries []history.TimelineEntry) (string, error)
}

var crudCollections = map[string]bool{
	schedule.CollectionClients:   true,
	schedule.CollectionSites:     true,
	schedule.CollectionWorkers:   true,
	schedule.CollectionSchedules: true,
}

// Service carries the domain operations behind the HTTP surface.
type Service struct {
	store    DataStore
	newBatch func() BatchWriter
	history  *history.Engine
	holidays *holiday.Service
	search   *search.Service
	archiver Archiver
	auth     *auth.Service
}

func NewService(dataStore DataStore, newBatch func() BatchWriter, hist *history.Engine, holidays *holiday.Service, searchSvc *search.Service, archiver Archiver, authSvc *auth.Service) *Service {
	return &Service{
		store:    dataStore,
		newBatch: newBatch,
		history:  hist,
		holidays: holidays,
		search:   searchSvc,
		archiver: archiver,
		auth:     authSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Auth() *auth.Service {
	return s.auth
}

// List returns every document of a collection. The master collections come
// back ordered by name; schedules are left in store order, callers sort by
// resolved date.
func (s *Service) List(ctx context.Context, collection string) ([]map[string]any, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	q := store.Query{Collection: collection}
	if collection != schedule.CollectionSchedules {
		q.OrderBy = "name"
	}
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	items := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		items = append(items, s.present(doc))
	}
	if collection == schedule.CollectionSchedules {
		sortByEffectiveDate(items)
	}
	return items, nil
}

// GetDoc reads one document.
func (s *Service) GetDoc(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	doc, err := s.store.Get(ctx, collection, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return nil, err
	}
	return s.present(doc), nil
}

// CreateDoc inserts a document and, for schedules, feeds the search index.
func (s *Service) CreateDoc(ctx context.Context, collection string, data map[string]any, actor string) (map[string]any, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := validateBody(collection, data); err != nil {
		return nil, err
	}
	doc, err := s.store.Create(ctx, collection, data, actor)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", collection, err)
	}
	s.indexSchedule(doc)
	return s.present(doc), nil
}

// UpdateDoc merges a patch into a document. Renaming a client or worker
// rewrites the denormalized copies on every referencing schedule in the same
// batch, so the name change and its fan-out land together.
func (s *Service) UpdateDoc(ctx context.Context, collection, id string, patch map[string]any, actor string) (map[string]any, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "empty patch", nil)
	}

	newName, renamed := renameIn(patch)
	if renamed && (collection == schedule.CollectionClients || collection == schedule.CollectionWorkers) {
		doc, err := s.renameWithPropagation(ctx, collection, id, patch, newName, actor)
		if err != nil {
			return nil, err
		}
		return s.present(doc), nil
	}

	doc, err := s.store.Update(ctx, collection, id, patch, actor)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	s.indexSchedule(doc)
	return s.present(doc), nil
}

// DeleteDoc removes a document. A client that schedules still reference is
// refused; deleting a worker cascades its id and denormalized name out of
// every referencing schedule atomically.
func (s *Service) DeleteDoc(ctx context.Context, collection, id string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}

	switch collection {
	case schedule.CollectionClients:
		refs, err := s.store.Query(ctx, store.Query{
			Collection: schedule.CollectionSchedules,
			Filters:    []store.Filter{{Field: "clientId", Op: store.OpEqual, Value: id}},
		})
		if err != nil {
			return fmt.Errorf("check client references: %w", err)
		}
		if len(refs) > 0 {
			return domainError(http.StatusConflict, "HAS_DEPENDENT_SCHEDULES",
				"Client is referenced by existing schedules",
				map[string]any{"scheduleCount": len(refs)})
		}
	case schedule.CollectionWorkers:
		return s.deleteWorkerCascade(ctx, id)
	}

	if err := s.store.Delete(ctx, collection, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if collection == schedule.CollectionSchedules && s.search != nil {
		s.search.DeleteSchedule(id)
	}
	return nil
}

// SchedulesByDate returns the schedules effective on one day. The three
// historical shapes need three lookups: plain day-key strings, date stored as
// a timestamp inside the day, and startAt ranges that overlap the day.
func (s *Service) SchedulesByDate(ctx context.Context, dateKey string) (map[string]any, error) {
	start, end, err := jpdate.DayRange(dateKey)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "date must be YYYY-MM-DD", nil)
	}

	seen := map[string]store.Doc{}
	collect := func(docs []store.Doc) {
		for _, doc := range docs {
			if _, dup := seen[doc.ID]; !dup {
				seen[doc.ID] = doc
			}
		}
	}

	byKey, err := s.store.Query(ctx, store.Query{
		Collection: schedule.CollectionSchedules,
		Filters:    []store.Filter{{Field: "date", Op: store.OpEqual, Value: dateKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("schedules by day key: %w", err)
	}
	collect(byKey)

	byTimestamp, err := s.store.Query(ctx, store.Query{
		Collection: schedule.CollectionSchedules,
		Filters: []store.Filter{
			{Field: "date", Op: store.OpGreaterOrEqual, Value: start},
			{Field: "date", Op: store.OpLess, Value: end},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("schedules by date timestamp: %w", err)
	}
	collect(byTimestamp)

	byRange, err := s.store.Query(ctx, store.Query{
		Collection: schedule.CollectionSchedules,
		Filters:    []store.Filter{{Field: "startAt", Op: store.OpLess, Value: end}},
	})
	if err != nil {
		return nil, fmt.Errorf("schedules by range: %w", err)
	}
	overlapping := byRange[:0]
	for _, doc := range byRange {
		if rangeReaches(doc.Data, start) {
			overlapping = append(overlapping, doc)
		}
	}
	collect(overlapping)

	items := make([]map[string]any, 0, len(seen))
	for _, doc := range seen {
		items = append(items, s.present(doc))
	}
	sortByEffectiveDate(items)

	return map[string]any{
		"date":  dateKey,
		"count": len(items),
		"items": items,
	}, nil
}

// Timeline returns the snapshot history of one document, newest first.
func (s *Service) Timeline(ctx context.Context, collection, docID string) (map[string]any, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	entries, err := s.history.Timeline(ctx, collection, docID)
	if err != nil {
		return nil, fmt.Errorf("timeline %s/%s: %w", collection, docID, err)
	}
	return map[string]any{"entries": entries, "count": len(entries)}, nil
}

// ExportTimeline archives the document's timeline and returns the object name.
func (s *Service) ExportTimeline(ctx context.Context, collection, docID string) (map[string]any, error) {
	if s.archiver == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Archive storage not configured", nil)
	}
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	entries, err := s.history.Timeline(ctx, collection, docID)
	if err != nil {
		return nil, fmt.Errorf("timeline %s/%s: %w", collection, docID, err)
	}
	name, err := s.archiver.ExportTimeline(ctx, collection, docID, entries)
	if err != nil {
		return nil, fmt.Errorf("export timeline %s/%s: %w", collection, docID, err)
	}
	return map[string]any{"object": name, "entries": len(entries)}, nil
}

// Holidays returns the national holiday day keys for a year.
func (s *Service) Holidays(ctx context.Context, year int) (map[string]any, error) {
	days, err := s.holidays.Days(ctx, year)
	if err != nil {
		if errors.Is(err, holiday.ErrYearOutOfRange) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
		return nil, fmt.Errorf("holidays %d: %w", year, err)
	}
	return map[string]any{"year": year, "days": days}, nil
}

// Search runs a free-text schedule search.
func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// renameWithPropagation updates the master document and rewrites the
// denormalized name on every referencing schedule in one batch.
func (s *Service) renameWithPropagation(ctx context.Context, collection, id string, patch map[string]any, newName, actor string) (store.Doc, error) {
	if _, err := s.store.Get(ctx, collection, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Doc{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return store.Doc{}, err
	}

	batch := s.newBatch()
	batch.Update(collection, id, patch, actor)

	switch collection {
	case schedule.CollectionClients:
		refs, err := s.store.Query(ctx, store.Query{
			Collection: schedule.CollectionSchedules,
			Filters:    []store.Filter{{Field: "clientId", Op: store.OpEqual, Value: id}},
		})
		if err != nil {
			return store.Doc{}, fmt.Errorf("find client schedules: %w", err)
		}
		for _, ref := range refs {
			batch.Update(schedule.CollectionSchedules, ref.ID, map[string]any{"clientName": newName}, actor)
		}
	case schedule.CollectionWorkers:
		refs, err := s.store.Query(ctx, store.Query{
			Collection: schedule.CollectionSchedules,
			Filters:    []store.Filter{{Field: "workerIds", Op: store.OpArrayContains, Value: id}},
		})
		if err != nil {
			return store.Doc{}, fmt.Errorf("find worker schedules: %w", err)
		}
		for _, ref := range refs {
			names, changed := replaceWorkerName(ref.Data, id, newName)
			if changed {
				batch.Update(schedule.CollectionSchedules, ref.ID, map[string]any{"workerNames": names}, actor)
			}
		}
	}

	if err := batch.Commit(ctx); err != nil {
		return store.Doc{}, fmt.Errorf("rename %s/%s: %w", collection, id, err)
	}
	return s.store.Get(ctx, collection, id)
}

// deleteWorkerCascade removes the worker and strips its id plus the
// same-index workerNames entry from every referencing schedule, preserving
// the pairing of the remaining parallel array entries.
func (s *Service) deleteWorkerCascade(ctx context.Context, workerID string) error {
	if _, err := s.store.Get(ctx, schedule.CollectionWorkers, workerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return err
	}

	refs, err := s.store.Query(ctx, store.Query{
		Collection: schedule.CollectionSchedules,
		Filters:    []store.Filter{{Field: "workerIds", Op: store.OpArrayContains, Value: workerID}},
	})
	if err != nil {
		return fmt.Errorf("find worker schedules: %w", err)
	}

	batch := s.newBatch()
	for _, ref := range refs {
		ids, names := removeWorker(ref.Data, workerID)
		batch.Update(schedule.CollectionSchedules, ref.ID, map[string]any{
			"workerIds":   ids,
			"workerNames": names,
		}, "")
	}
	batch.Delete(schedule.CollectionWorkers, workerID)

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("delete worker %s: %w", workerID, err)
	}
	return nil
}

// present flattens a document into its response shape with the resolved
// schedule fields attached.
func (s *Service) present(doc store.Doc) map[string]any {
	out := make(map[string]any, len(doc.Data)+4)
	for k, v := range doc.Data {
		out[k] = v
	}
	out["id"] = doc.ID
	if doc.Collection == schedule.CollectionSchedules {
		resolved := schedule.Resolve(doc.Data)
		out["effectiveDate"] = resolved.EffectiveDate
		out["isComplete"] = resolved.IsComplete
		out["displayDate"] = schedule.DisplayDate(resolved)
	}
	return out
}

func (s *Service) indexSchedule(doc store.Doc) {
	if doc.Collection != schedule.CollectionSchedules || s.search == nil {
		return
	}
	resolved := schedule.Resolve(doc.Data)
	s.search.IndexSchedule(search.Record{
		ID:          doc.ID,
		SiteName:    stringField(doc.Data, "siteName"),
		Task:        stringField(doc.Data, "task"),
		ClientName:  stringField(doc.Data, "clientName"),
		WorkerNames: stringSlice(doc.Data["workerNames"]),
		Date:        resolved.EffectiveDate,
		Done:        resolved.IsComplete,
	})
}

func checkCollection(collection string) error {
	if !crudCollections[collection] {
		return domainError(http.StatusNotFound, "UNKNOWN_COLLECTION",
			fmt.Sprintf("unknown collection %q", collection), nil)
	}
	return nil
}

func validateBody(collection string, data map[string]any) error {
	switch collection {
	case schedule.CollectionClients, schedule.CollectionSites, schedule.CollectionWorkers:
		name, _ := data["name"].(string)
		if strings.TrimSpace(name) == "" {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
		}
	case schedule.CollectionSchedules:
		siteName, _ := data["siteName"].(string)
		if strings.TrimSpace(siteName) == "" {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "siteName is required", nil)
		}
	}
	return nil
}

// renameIn reports whether the patch changes the display name.
func renameIn(patch map[string]any) (string, bool) {
	v, present := patch["name"]
	if !present {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}

// rangeReaches reports whether a ranged schedule extends to or past the day
// start. Schedules without endAt count as single-day entries at startAt.
func rangeReaches(data map[string]any, dayStart time.Time) bool {
	if endAt, ok := jpdate.ParseAny(data["endAt"]); ok {
		return !endAt.Before(dayStart)
	}
	startAt, ok := jpdate.ParseAny(data["startAt"])
	if !ok {
		return false
	}
	return !startAt.Before(dayStart)
}

// replaceWorkerName rewrites the workerNames entry at the index of workerID.
func replaceWorkerName(data map[string]any, workerID, newName string) ([]string, bool) {
	ids := stringSlice(data["workerIds"])
	names := stringSlice(data["workerNames"])
	changed := false
	for i, id := range ids {
		if id == workerID && i < len(names) {
			names[i] = newName
			changed = true
		}
	}
	return names, changed
}

// removeWorker strips workerID from workerIds and the entry at the same index
// from workerNames.
func removeWorker(data map[string]any, workerID string) (ids, names []string) {
	oldIDs := stringSlice(data["workerIds"])
	oldNames := stringSlice(data["workerNames"])
	ids = make([]string, 0, len(oldIDs))
	names = make([]string, 0, len(oldNames))
	for i, id := range oldIDs {
		if id == workerID {
			continue
		}
		ids = append(ids, id)
		if i < len(oldNames) {
			names = append(names, oldNames[i])
		}
	}
	// Trailing names without a paired id survive untouched.
	if len(oldNames) > len(oldIDs) {
		names = append(names, oldNames[len(oldIDs):]...)
	}
	return ids, names
}

func sortByEffectiveDate(items []map[string]any) {
	sort.SliceStable(items, func(i, j int) bool {
		a, _ := items[i]["effectiveDate"].(string)
		b, _ := items[j]["effectiveDate"].(string)
		if a != b {
			// Undated schedules sort last.
			if a == "" {
				return false
			}
			if b == "" {
				return true
			}
			return a < b
		}
		ai, _ := items[i]["id"].(string)
		bi, _ := items[j]["id"].(string)
		return ai < bi
	})
}

func stringField(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func stringSlice(v any) []string {
	switch value := v.(type) {
	case []string:
		out := make([]string, len(value))
		copy(out, value)
		return out
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprintf("%v", item))
			}
		}
		return out
	default:
		return nil
	}
}
