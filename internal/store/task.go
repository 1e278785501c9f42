package store

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

type Stage string

const (
	StageActive   Stage = "active"
	StageDraft    Stage = "draft"
	StageArchived Stage = "archived"
)

// Stages lists every lifecycle stage in directory scan order.
var Stages = []Stage{StageActive, StageDraft, StageArchived}

// Origin records where a Task was read from.
type Origin struct {
	Remote bool   `json:"remote"`
	Branch string `json:"branch,omitempty"`
}

var LocalOrigin = Origin{}

func (o Origin) String() string {
	if !o.Remote {
		return "local"
	}
	return "remote:" + o.Branch
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Assignee    []string   `json:"assignee,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	CreatedDate *time.Time `json:"createdDate,omitempty"`
	UpdatedDate *time.Time `json:"updatedDate,omitempty"`
	ModTime     *time.Time `json:"modTime,omitempty"`
	Stage       Stage      `json:"stage"`
	Origin      Origin     `json:"origin"`
	Path        string     `json:"path,omitempty"`
}

// BranchRef names a branch in the repository. Remote branches carry the
// remote prefix in Name (origin/feature).
type BranchRef struct {
	Name   string `json:"name"`
	Remote bool   `json:"remote"`
}

// Ref returns the revision string used to read the branch.
func (b BranchRef) Ref() string {
	return b.Name
}

// Board is an immutable reconciled view of the active tasks.
type Board struct {
	RunID      string    `json:"runId,omitempty"`
	Tasks      []Task    `json:"tasks"`
	Statuses   []string  `json:"statuses"`
	ComputedAt time.Time `json:"computedAt"`
}

// Clone returns a copy sharing no memory with b, so callers may modify any
// field of it, including the tasks' slices and time pointers.
func (b Board) Clone() Board {
	out := b
	out.Statuses = append([]string(nil), b.Statuses...)
	if b.Tasks != nil {
		out.Tasks = make([]Task, len(b.Tasks))
		for i, task := range b.Tasks {
			out.Tasks[i] = task.Clone()
		}
	}
	return out
}

// Clone returns a copy of t with its own slices and time values.
func (t Task) Clone() Task {
	out := t
	out.Assignee = append([]string(nil), t.Assignee...)
	out.Labels = append([]string(nil), t.Labels...)
	out.CreatedDate = cloneTime(t.CreatedDate)
	out.UpdatedDate = cloneTime(t.UpdatedDate)
	out.ModTime = cloneTime(t.ModTime)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CompareIDs orders task identifiers by their segments. Numeric segments
// compare as numbers, so task-2 sorts before task-10 and task-1.1 sorts
// between task-1 and task-2.
func CompareIDs(a, b string) int {
	as := splitID(a)
	bs := splitID(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return strings.Compare(a, b)
}

func splitID(id string) []string {
	return strings.FieldsFunc(strings.ToLower(id), func(r rune) bool {
		return r == '-' || r == '.' || r == '_'
	})
}

func compareSegment(a, b string) int {
	an, aErr := strconv.Atoi(a)
	bn, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// MatchesID reports whether fileName belongs to the task id. Record files are
// named "<id> - <title>.md", so the id must be followed by the end of the
// stem or a separator. A dot followed by a digit continues the id (task-1.1).
func MatchesID(fileName, id string) bool {
	if id == "" || len(fileName) < len(id) {
		return false
	}
	if !strings.EqualFold(fileName[:len(id)], id) {
		return false
	}
	rest := fileName[len(id):]
	if rest == "" || strings.EqualFold(rest, ".md") {
		return true
	}
	r := []rune(rest)
	if unicode.IsLetter(r[0]) || unicode.IsDigit(r[0]) {
		return false
	}
	if r[0] == '.' && len(r) > 1 && unicode.IsDigit(r[1]) {
		return false
	}
	return true
}
