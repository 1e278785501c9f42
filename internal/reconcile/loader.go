package reconcile

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"boardsync/internal/store"

	"golang.org/x/sync/errgroup"
)

// Loader reads the active task records of every remote branch.
type Loader struct {
	vcs    VCS
	root   string
	fanout int
	logger *log.Logger
}

// NewLoader returns a Loader reading records under root. fanout caps the
// number of concurrent branch and file reads; zero leaves them unbounded.
func NewLoader(vcs VCS, root string, fanout int, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{vcs: vcs, root: root, fanout: fanout, logger: logger}
}

type loadFailure struct {
	branch string
	path   string
	err    error
}

// Load returns every remote task it could parse, tagged with its branch. A
// failing branch or file is logged and skipped; a failing fetch degrades to
// an empty result. The only error returned is ErrCancelled.
func (l *Loader) Load(ctx context.Context, progress ProgressFunc) ([]store.Task, error) {
	progress.emit("Fetching remote branches...")
	if err := l.vcs.Fetch(ctx); err != nil {
		if checkpoint(ctx) != nil {
			return nil, ErrCancelled
		}
		l.logger.Printf("reconcile: fetch failed, using local data: %v", err)
		progress.emit("Remote unavailable, showing local tasks only")
		return []store.Task{}, nil
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	branches, err := l.vcs.ListRemoteBranches(ctx)
	if err != nil {
		if checkpoint(ctx) != nil {
			return nil, ErrCancelled
		}
		l.logger.Printf("reconcile: list remote branches: %v", err)
		progress.emit("Could not list remote branches, showing local tasks only")
		return []store.Task{}, nil
	}
	if len(branches) == 0 {
		progress.emit("No remote branches found")
		return []store.Task{}, nil
	}
	progress.emit(fmt.Sprintf("Loading tasks from %d remote branches...", len(branches)))

	var (
		mu       sync.Mutex
		failures []loadFailure
	)
	fail := func(f loadFailure) {
		mu.Lock()
		failures = append(failures, f)
		mu.Unlock()
	}

	perBranch := make([][]store.Task, len(branches))
	g := l.group()
	for i, branch := range branches {
		i, branch := i, branch
		g.Go(func() error {
			tasks, err := l.loadBranch(ctx, branch, fail)
			if err != nil {
				fail(loadFailure{branch: branch, err: err})
				return nil
			}
			perBranch[i] = tasks
			return nil
		})
	}
	_ = g.Wait()
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	var out []store.Task
	for _, tasks := range perBranch {
		out = append(out, tasks...)
	}
	for _, f := range failures {
		if f.path == "" {
			l.logger.Printf("reconcile: load branch %s: %v", f.branch, f.err)
		} else {
			l.logger.Printf("reconcile: load %s on %s: %v", f.path, f.branch, f.err)
		}
	}
	if len(failures) > 0 {
		progress.emit(fmt.Sprintf("Loaded %d remote tasks (%d skipped)", len(out), len(failures)))
	} else {
		progress.emit(fmt.Sprintf("Loaded %d remote tasks", len(out)))
	}
	if out == nil {
		out = []store.Task{}
	}
	return out, nil
}

func (l *Loader) loadBranch(ctx context.Context, branch string, fail func(loadFailure)) ([]store.Task, error) {
	dir := store.StageDir(l.root, store.StageActive)
	files, err := l.vcs.ListFiles(ctx, branch, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	slots := make([]*store.Task, len(files))
	g := l.group()
	for i, file := range files {
		if !store.IsRecordFile(file) {
			continue
		}
		i, file := i, file
		g.Go(func() error {
			task, err := l.loadFile(ctx, branch, file)
			if err != nil {
				fail(loadFailure{branch: branch, path: file, err: err})
				return nil
			}
			slots[i] = &task
			return nil
		})
	}
	_ = g.Wait()

	tasks := make([]store.Task, 0, len(slots))
	for _, slot := range slots {
		if slot != nil {
			tasks = append(tasks, *slot)
		}
	}
	return tasks, nil
}

func (l *Loader) loadFile(ctx context.Context, branch, file string) (store.Task, error) {
	var (
		content string
		modTime time.Time
		hasTime bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		content, err = l.vcs.ReadFile(gctx, branch, file)
		return err
	})
	g.Go(func() error {
		var err error
		modTime, hasTime, err = l.vcs.LastModified(gctx, branch, file)
		return err
	})
	if err := g.Wait(); err != nil {
		return store.Task{}, err
	}

	task, err := store.ParseTask(content)
	if err != nil {
		return store.Task{}, err
	}
	if hasTime {
		task.ModTime = &modTime
	}
	stage, ok := store.StageForPath(l.root, file)
	if !ok {
		return store.Task{}, fmt.Errorf("%s is outside the record layout", file)
	}
	task.Stage = stage
	task.Origin = store.Origin{Remote: true, Branch: branch}
	task.Path = file
	return task, nil
}

func (l *Loader) group() *errgroup.Group {
	g := &errgroup.Group{}
	if l.fanout > 0 {
		g.SetLimit(l.fanout)
	}
	return g
}
