package search

import (
	"encoding/base64"
	"strings"

	"boardsync/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Status  string   `json:"status"`
	Labels  []string `json:"labels,omitempty"`
	Branch  string   `json:"branch,omitempty"`
	Path    string   `json:"path,omitempty"`
	Snippet string   `json:"snippet,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterStatus string
	FilterLabel  string
	FilterBranch string // "local" matches tasks read from the working tree
	Limit        int
	Offset       int
}

// Response is the envelope returned to callers of Service.Search.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	Key      string   `json:"key"`
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Status   string   `json:"status"`
	Assignee []string `json:"assignee"`
	Labels   []string `json:"labels"`
	Branch   string   `json:"branch"`
	Path     string   `json:"path"`
	Updated  int64    `json:"updated"`
}

// DocumentKey maps a task id onto the character set Meilisearch accepts for
// primary keys. Task ids may contain dots, which it rejects.
func DocumentKey(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// RecordFromTask converts a reconciled task into its index document.
func RecordFromTask(task store.Task) TaskRecord {
	r := TaskRecord{
		Key:      DocumentKey(task.ID),
		ID:       task.ID,
		Title:    task.Title,
		Status:   task.Status,
		Assignee: nonNilStrings(task.Assignee),
		Labels:   nonNilStrings(task.Labels),
		Branch:   branchOf(task),
		Path:     task.Path,
	}
	switch {
	case task.UpdatedDate != nil:
		r.Updated = task.UpdatedDate.Unix()
	case task.ModTime != nil:
		r.Updated = task.ModTime.Unix()
	}
	return r
}

// RecordsFromBoard converts every task on the board.
func RecordsFromBoard(board store.Board) []TaskRecord {
	records := make([]TaskRecord, 0, len(board.Tasks))
	for _, task := range board.Tasks {
		records = append(records, RecordFromTask(task))
	}
	return records
}

func branchOf(task store.Task) string {
	if !task.Origin.Remote {
		return "local"
	}
	return task.Origin.Branch
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// matchBoard is the in-process fallback used while Meilisearch is down.
func matchBoard(board store.Board, q Query) ([]Result, int) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	var matched []Result
	for _, task := range board.Tasks {
		if q.FilterStatus != "" && !strings.EqualFold(task.Status, q.FilterStatus) {
			continue
		}
		if q.FilterLabel != "" && !containsFold(task.Labels, q.FilterLabel) {
			continue
		}
		if q.FilterBranch != "" && branchOf(task) != q.FilterBranch {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(task.Title), needle) &&
			!strings.Contains(strings.ToLower(task.ID), needle) && !containsFold(task.Labels, needle) {
			continue
		}
		matched = append(matched, Result{
			ID:     task.ID,
			Title:  task.Title,
			Status: task.Status,
			Labels: task.Labels,
			Branch: branchOf(task),
			Path:   task.Path,
		})
	}

	total := len(matched)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit := pageLimit(q.Limit); offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total
}

func containsFold(values []string, want string) bool {
	for _, value := range values {
		if strings.EqualFold(value, want) {
			return true
		}
	}
	return false
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
