package reconcile

import (
	"context"
	"log"
	"path"
	"sync"
	"time"

	"boardsync/internal/store"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultBatchSize bounds how many directory lookups run at once.
const DefaultBatchSize = 50

// Sighting is where a task was last seen on some branch.
type Sighting struct {
	TaskID  string
	Stage   store.Stage
	Branch  string
	ModTime time.Time
	Path    string
}

// Locator finds, for a known set of task ids, the most recently modified
// record across every branch and lifecycle directory.
type Locator struct {
	vcs       VCS
	root      string
	batchSize int
	logger    *log.Logger
}

func NewLocator(vcs VCS, root string, batchSize int, logger *log.Logger) *Locator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Locator{vcs: vcs, root: root, batchSize: batchSize, logger: logger}
}

type lookup struct {
	branch store.BranchRef
	id     string
	stage  store.Stage
}

// Locate returns the newest sighting per id. Ids never sighted are absent
// from the map, so an empty map means nothing should be hidden. Lookups that
// fail contribute nothing. The only error returned is ErrCancelled.
func (l *Locator) Locate(ctx context.Context, ids []string, branches []store.BranchRef) (map[string]Sighting, error) {
	lookups := make([]lookup, 0, len(ids)*len(branches)*len(store.Stages))
	for _, branch := range branches {
		for _, id := range ids {
			for _, stage := range store.Stages {
				lookups = append(lookups, lookup{branch: branch, id: id, stage: stage})
			}
		}
	}

	listings := newDirListings(l.vcs)
	found := make([]*Sighting, len(lookups))
	for start := 0; start < len(lookups); start += l.batchSize {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		end := min(start+l.batchSize, len(lookups))
		g := &errgroup.Group{}
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				found[i] = l.sight(ctx, listings, lookups[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	latest := make(map[string]Sighting, len(ids))
	for _, s := range found {
		if s == nil {
			continue
		}
		current, ok := latest[s.TaskID]
		if !ok || s.ModTime.After(current.ModTime) {
			latest[s.TaskID] = *s
		}
	}
	return latest, nil
}

// LocateAll runs Locate across every local and remote branch. When the
// branches cannot be enumerated it logs and returns an empty map.
func (l *Locator) LocateAll(ctx context.Context, ids []string) (map[string]Sighting, error) {
	if len(ids) == 0 {
		return map[string]Sighting{}, nil
	}
	branches, err := l.vcs.ListBranches(ctx)
	if err != nil {
		if checkpoint(ctx) != nil {
			return nil, ErrCancelled
		}
		l.logger.Printf("reconcile: list branches for location lookup: %v", err)
		return map[string]Sighting{}, nil
	}
	return l.Locate(ctx, ids, branches)
}

func (l *Locator) sight(ctx context.Context, listings *dirListings, lk lookup) *Sighting {
	dir := store.StageDir(l.root, lk.stage)
	files, err := listings.list(ctx, lk.branch.Ref(), dir)
	if err != nil {
		return nil
	}
	for _, file := range files {
		if !store.IsRecordFile(file) || !store.MatchesID(path.Base(file), lk.id) {
			continue
		}
		when, ok, err := l.vcs.LastModified(ctx, lk.branch.Ref(), file)
		if err != nil || !ok {
			return nil
		}
		return &Sighting{TaskID: lk.id, Stage: lk.stage, Branch: lk.branch.Name, ModTime: when, Path: file}
	}
	return nil
}

// dirListings memoises directory listings for a single Locate call. Every
// id shares the same few (branch, directory) pairs.
type dirListings struct {
	vcs   VCS
	group singleflight.Group
	mu    sync.Mutex
	done  map[string]listing
}

type listing struct {
	files []string
	err   error
}

func newDirListings(vcs VCS) *dirListings {
	return &dirListings{vcs: vcs, done: make(map[string]listing)}
}

func (d *dirListings) list(ctx context.Context, ref, dir string) ([]string, error) {
	key := ref + "\x00" + dir
	d.mu.Lock()
	cached, ok := d.done[key]
	d.mu.Unlock()
	if ok {
		return cached.files, cached.err
	}
	v, err, _ := d.group.Do(key, func() (any, error) {
		files, err := d.vcs.ListFiles(ctx, ref, dir)
		d.mu.Lock()
		d.done[key] = listing{files: files, err: err}
		d.mu.Unlock()
		return files, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}
