package gitrepo

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"boardsync/internal/testutil"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, g *testutil.GitRepo) *Service {
	t.Helper()
	svc, err := Open(g.Dir, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return svc
}

func TestBranchListing(t *testing.T) {
	g := testutil.NewGitRepo(t, base)
	g.Commit("feature", base.Add(time.Hour), map[string]string{"backlog/tasks/task-1 - A.md": testutil.Record("task-1", "A", "To Do")})
	g.Track("origin", "feature")
	g.Track("origin", "main")
	g.Checkout("main")

	svc := newService(t, g)
	ctx := context.Background()

	branches, err := svc.ListBranches(ctx)
	if err != nil {
		t.Fatalf("ListBranches() error = %v", err)
	}
	want := []struct {
		name   string
		remote bool
	}{
		{"feature", false},
		{"main", false},
		{"origin/feature", true},
		{"origin/main", true},
	}
	if len(branches) != len(want) {
		t.Fatalf("ListBranches() = %+v", branches)
	}
	for i, w := range want {
		if branches[i].Name != w.name || branches[i].Remote != w.remote {
			t.Fatalf("branch %d = %+v, want %+v", i, branches[i], w)
		}
	}

	remotes, err := svc.ListRemoteBranches(ctx)
	if err != nil {
		t.Fatalf("ListRemoteBranches() error = %v", err)
	}
	if len(remotes) != 2 || remotes[0] != "origin/feature" || remotes[1] != "origin/main" {
		t.Fatalf("ListRemoteBranches() = %v", remotes)
	}
}

func TestReadTreeAtRef(t *testing.T) {
	g := testutil.NewGitRepo(t, base)
	first := base.Add(time.Hour)
	second := base.Add(2 * time.Hour)
	g.Commit("feature", first, map[string]string{
		"backlog/tasks/task-1 - A.md": testutil.Record("task-1", "A", "To Do"),
		"backlog/tasks/task-2 - B.md": testutil.Record("task-2", "B", "To Do"),
	})
	g.Commit("feature", second, map[string]string{
		"backlog/tasks/task-2 - B.md": testutil.Record("task-2", "B", "Done"),
	})
	g.Track("origin", "feature")
	g.Checkout("main")

	svc := newService(t, g)
	ctx := context.Background()

	files, err := svc.ListFiles(ctx, "origin/feature", "backlog/tasks")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 2 || files[0] != "backlog/tasks/task-1 - A.md" || files[1] != "backlog/tasks/task-2 - B.md" {
		t.Fatalf("ListFiles() = %v", files)
	}

	onMain, err := svc.ListFiles(ctx, "main", "backlog/tasks")
	if err != nil {
		t.Fatalf("ListFiles(main) error = %v", err)
	}
	if len(onMain) != 0 {
		t.Fatalf("expected no files on main, got %v", onMain)
	}

	content, err := svc.ReadFile(ctx, "origin/feature", "backlog/tasks/task-2 - B.md")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if content != testutil.Record("task-2", "B", "Done") {
		t.Fatalf("ReadFile() = %q", content)
	}

	when, ok, err := svc.LastModified(ctx, "origin/feature", "backlog/tasks/task-1 - A.md")
	if err != nil || !ok {
		t.Fatalf("LastModified(task-1) = %v, %v, %v", when, ok, err)
	}
	if !when.Equal(first) {
		t.Fatalf("LastModified(task-1) = %v, want %v", when, first)
	}
	when, ok, err = svc.LastModified(ctx, "feature", "backlog/tasks/task-2 - B.md")
	if err != nil || !ok || !when.Equal(second) {
		t.Fatalf("LastModified(task-2) = %v, %v, %v; want %v", when, ok, err, second)
	}

	_, ok, err = svc.LastModified(ctx, "main", "backlog/tasks/task-1 - A.md")
	if err != nil {
		t.Fatalf("LastModified(main) error = %v", err)
	}
	if ok {
		t.Fatal("expected no history for file absent on main")
	}
}

func TestUnknownRefFails(t *testing.T) {
	g := testutil.NewGitRepo(t, base)
	svc := newService(t, g)
	if _, err := svc.ListFiles(context.Background(), "origin/missing", "backlog/tasks"); err == nil {
		t.Fatal("expected error for unknown ref")
	}
	if _, err := svc.ReadFile(context.Background(), "main", "backlog/tasks/none.md"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFetchWithoutRemotesIsNoop(t *testing.T) {
	g := testutil.NewGitRepo(t, base)
	svc := newService(t, g)
	if err := svc.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
}

func TestCancelledContextStopsReads(t *testing.T) {
	g := testutil.NewGitRepo(t, base)
	svc := newService(t, g)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.ListBranches(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestConcurrentReads(t *testing.T) {
	g := testutil.NewGitRepo(t, base)
	files := map[string]string{}
	for _, id := range []string{"task-1", "task-2", "task-3", "task-4"} {
		files["backlog/tasks/"+id+" - T.md"] = testutil.Record(id, "T", "To Do")
	}
	g.Commit("feature", base.Add(time.Hour), files)
	g.Track("origin", "feature")

	svc := newService(t, g)
	const readers = 16
	var wg sync.WaitGroup
	errCh := make(chan error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range files {
				if _, err := svc.ReadFile(context.Background(), "origin/feature", name); err != nil {
					errCh <- err
					return
				}
				if _, _, err := svc.LastModified(context.Background(), "origin/feature", name); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent read error = %v", err)
	}
}
