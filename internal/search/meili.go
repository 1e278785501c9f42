package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxTasks = "boardsync_tasks"

// Meili implements Searcher via Meilisearch and keeps the task index in step
// with the reconciled board.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	once    sync.Once
	logger  *log.Logger

	mu      sync.Mutex
	indexed map[string]struct{} // document keys pushed by the last sync
}

// NewMeili creates a Meilisearch client and configures the task index.
// An unreachable server is not an error; the health loop picks it up later.
func NewMeili(url, apiKey string, logger *log.Logger) *Meili {
	if logger == nil {
		logger = log.Default()
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client:  client,
		done:    make(chan struct{}),
		logger:  logger,
		indexed: map[string]struct{}{},
	}

	if _, err := client.Health(); err != nil {
		logger.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxTasks,
		PrimaryKey: "key",
	}); err != nil {
		m.logger.Printf("search: create index %s (may already exist): %v", idxTasks, err)
	}

	index := m.client.Index(idxTasks)
	filterable := []interface{}{"status", "labels", "assignee", "branch"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Printf("search: update filterable attrs for %s: %v", idxTasks, err)
	}
	searchable := []string{"title", "id", "labels", "assignee"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Printf("search: update searchable attrs for %s: %v", idxTasks, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	m.once.Do(func() { close(m.done) })
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Sync indexes every record and removes the documents of tasks that were on
// the previously synced board but are no longer present.
func (m *Meili) Sync(records []TaskRecord) error {
	current := make(map[string]struct{}, len(records))
	for _, r := range records {
		current[r.Key] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	index := m.client.Index(idxTasks)
	if len(records) > 0 {
		if _, err := index.AddDocuments(records, nil); err != nil {
			m.healthy.Store(false)
			return fmt.Errorf("meilisearch add tasks: %w", err)
		}
	}
	var failed []string
	for key := range m.indexed {
		if _, ok := current[key]; ok {
			continue
		}
		if _, err := index.DeleteDocument(key, nil); err != nil {
			failed = append(failed, key)
		}
	}
	m.indexed = current
	for _, key := range failed {
		m.indexed[key] = struct{}{}
	}
	if len(failed) > 0 {
		return fmt.Errorf("meilisearch delete %d stale tasks", len(failed))
	}
	return nil
}

// Search queries the task index.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	sr := &meili.SearchRequest{
		IndexUID:              idxTasks,
		Query:                 q.Text,
		Limit:                 int64(pageLimit(q.Limit)),
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"title"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
		ShowRankingScore:      true,
	}
	if filters := filtersFor(q); len(filters) > 0 {
		sr.Filter = filters
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, r := range resp.Results {
		total += int(r.EstimatedTotalHits)
		for _, hit := range r.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func filtersFor(q Query) []string {
	var filters []string
	if q.FilterStatus != "" {
		filters = append(filters, fmt.Sprintf("status = %q", q.FilterStatus))
	}
	if q.FilterLabel != "" {
		filters = append(filters, fmt.Sprintf("labels = %q", q.FilterLabel))
	}
	if q.FilterBranch != "" {
		filters = append(filters, fmt.Sprintf("branch = %q", q.FilterBranch))
	}
	return filters
}

func hitToResult(hit meili.Hit) Result {
	title := decodeString(hit, "title")
	r := Result{
		ID:     decodeString(hit, "id"),
		Title:  title,
		Status: decodeString(hit, "status"),
		Labels: decodeStrings(hit, "labels"),
		Branch: decodeString(hit, "branch"),
		Path:   decodeString(hit, "path"),
	}
	if formatted := decodeFormattedString(hit, "title"); formatted != "" && formatted != title {
		r.Snippet = formatted
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeStrings(hit meili.Hit, key string) []string {
	raw, ok := hit[key]
	if !ok {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	return values
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
