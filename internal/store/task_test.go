package store

import (
	"sort"
	"testing"
	"time"
)

func TestCompareIDsOrdersNumericSegments(t *testing.T) {
	ids := []string{"task-10", "task-2", "task-1.1", "task-1", "TASK-3", "task-1.10", "task-1.2"}
	sort.SliceStable(ids, func(i, j int) bool { return CompareIDs(ids[i], ids[j]) < 0 })

	want := []string{"task-1", "task-1.1", "task-1.2", "task-1.10", "task-2", "TASK-3", "task-10"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("sorted ids = %v, want %v", ids, want)
		}
	}
}

func TestCompareIDsEqual(t *testing.T) {
	if got := CompareIDs("task-7", "task-7"); got != 0 {
		t.Fatalf("CompareIDs() = %d, want 0", got)
	}
}

func TestMatchesID(t *testing.T) {
	cases := []struct {
		name string
		file string
		id   string
		want bool
	}{
		{name: "title suffix", file: "task-1 - Fix login.md", id: "task-1", want: true},
		{name: "bare file", file: "task-1.md", id: "task-1", want: true},
		{name: "case insensitive", file: "TASK-1 - Fix.md", id: "task-1", want: true},
		{name: "longer number", file: "task-10 - Other.md", id: "task-1", want: false},
		{name: "subtask", file: "task-1.1 - Child.md", id: "task-1", want: false},
		{name: "subtask exact", file: "task-1.1 - Child.md", id: "task-1.1", want: true},
		{name: "letter continuation", file: "task-1a - X.md", id: "task-1", want: false},
		{name: "other id", file: "task-2 - X.md", id: "task-1", want: false},
		{name: "empty id", file: "task-2 - X.md", id: "", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchesID(tc.file, tc.id); got != tc.want {
				t.Fatalf("MatchesID(%q, %q) = %v, want %v", tc.file, tc.id, got, tc.want)
			}
		})
	}
}

func TestBoardCloneIsIndependent(t *testing.T) {
	board := Board{Tasks: []Task{{ID: "task-1"}}, Statuses: []string{"To Do"}}
	clone := board.Clone()
	clone.Tasks[0].ID = "task-9"
	clone.Statuses[0] = "Done"
	if board.Tasks[0].ID != "task-1" || board.Statuses[0] != "To Do" {
		t.Fatalf("clone mutated original: %+v", board)
	}
}

func TestBoardCloneCopiesTaskFields(t *testing.T) {
	updated := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	board := Board{Tasks: []Task{{
		ID:          "task-1",
		Labels:      []string{"ui"},
		Assignee:    []string{"@sam"},
		UpdatedDate: &updated,
	}}}
	clone := board.Clone()
	clone.Tasks[0].Labels[0] = "api"
	clone.Tasks[0].Assignee[0] = "@kim"
	*clone.Tasks[0].UpdatedDate = updated.Add(time.Hour)

	got := board.Tasks[0]
	if got.Labels[0] != "ui" || got.Assignee[0] != "@sam" || !got.UpdatedDate.Equal(updated) {
		t.Fatalf("clone shares task fields with original: %+v", got)
	}
	if clone.Tasks[0].CreatedDate != nil || clone.Tasks[0].ModTime != nil {
		t.Fatalf("absent times should stay absent: %+v", clone.Tasks[0])
	}
}
