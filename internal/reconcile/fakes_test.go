package reconcile

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"boardsync/internal/store"
)

var quietLogger = log.New(io.Discard, "", 0)

type fakeFile struct {
	content string
	mod     time.Time
}

type fakeVCS struct {
	mu          sync.Mutex
	fetchErr    error
	onFetch     func()
	branchErr   error
	local       []string
	remotes     []string
	trees       map[string]map[string]fakeFile
	fetches     atomic.Int32
	listCalls   atomic.Int32
	readCalls   atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{trees: map[string]map[string]fakeFile{}}
}

func (f *fakeVCS) put(ref, filePath, content string, mod time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trees[ref] == nil {
		f.trees[ref] = map[string]fakeFile{}
	}
	f.trees[ref][filePath] = fakeFile{content: content, mod: mod}
}

func (f *fakeVCS) addLocal(names ...string) {
	f.local = append(f.local, names...)
	for _, name := range names {
		f.ensureTree(name)
	}
}

func (f *fakeVCS) addRemote(names ...string) {
	f.remotes = append(f.remotes, names...)
	for _, name := range names {
		f.ensureTree(name)
	}
}

func (f *fakeVCS) ensureTree(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trees[ref] == nil {
		f.trees[ref] = map[string]fakeFile{}
	}
}

func (f *fakeVCS) track() func() {
	n := f.inFlight.Add(1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeVCS) Fetch(ctx context.Context) error {
	f.fetches.Add(1)
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.fetchErr
}

func (f *fakeVCS) ListRemoteBranches(ctx context.Context) ([]string, error) {
	if f.branchErr != nil {
		return nil, f.branchErr
	}
	return append([]string(nil), f.remotes...), nil
}

func (f *fakeVCS) ListBranches(ctx context.Context) ([]store.BranchRef, error) {
	if f.branchErr != nil {
		return nil, f.branchErr
	}
	var out []store.BranchRef
	for _, name := range f.local {
		out = append(out, store.BranchRef{Name: name})
	}
	for _, name := range f.remotes {
		out = append(out, store.BranchRef{Name: name, Remote: true})
	}
	return out, nil
}

func (f *fakeVCS) ListFiles(ctx context.Context, ref, dir string) ([]string, error) {
	defer f.track()()
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	tree, ok := f.trees[ref]
	if !ok {
		return nil, fmt.Errorf("resolve %s: reference not found", ref)
	}
	var files []string
	for p := range tree {
		if path.Dir(p) == dir {
			files = append(files, p)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (f *fakeVCS) ReadFile(ctx context.Context, ref, filePath string) (string, error) {
	defer f.track()()
	f.readCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.trees[ref][filePath]
	if !ok {
		return "", fmt.Errorf("load %s at %s: file not found", filePath, ref)
	}
	return file.content, nil
}

func (f *fakeVCS) LastModified(ctx context.Context, ref, filePath string) (time.Time, bool, error) {
	defer f.track()()
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.trees[ref][filePath]
	if !ok {
		return time.Time{}, false, nil
	}
	return file.mod, true, nil
}

type fakeLocal struct {
	mu    sync.Mutex
	tasks []store.Task
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (l *fakeLocal) ListActive(ctx context.Context) ([]store.Task, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return append([]store.Task(nil), l.tasks...), nil
}

func (l *fakeLocal) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func record(id, title, status string) string {
	return "---\nid: " + id + "\ntitle: " + title + "\nstatus: " + status + "\n---\n"
}

func localTask(id, status string) store.Task {
	return store.Task{ID: id, Title: id, Status: status, Stage: store.StageActive, Origin: store.LocalOrigin}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
