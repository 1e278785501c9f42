package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"boardsync/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL     = 5 * time.Minute
	publishTimeout = 5 * time.Second
	loadKey        = "board"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateStale   State = "stale"
)

// Deps are the collaborators and settings a Cache reconciles with.
type Deps struct {
	VCS           VCS
	Local         LocalStore
	RecordRoot    string
	Statuses      []string
	Strategy      Strategy
	RemoteEnabled bool
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithBatchSize(n int) Option {
	return func(c *Cache) { c.batchSize = n }
}

func WithRemoteFanout(n int) Option {
	return func(c *Cache) { c.fanout = n }
}

func WithPublisher(p Publisher) Option {
	return func(c *Cache) {
		if p != nil {
			c.publishers = append(c.publishers, p)
		}
	}
}

type entry struct {
	board  store.Board
	at     time.Time
	seeded bool // computed elsewhere; never fresh
}

// Cache owns the reconciled board. Loads are shared: concurrent callers wait
// on one in-flight load. Each successful load replaces the board wholesale.
type Cache struct {
	deps       Deps
	ttl        time.Duration
	now        func() time.Time
	logger     *log.Logger
	batchSize  int
	fanout     int
	publishers []Publisher

	loader  *Loader
	locator *Locator

	group   singleflight.Group
	loading atomic.Bool

	mu          sync.Mutex
	current     *entry
	invalidated bool
	progress    ProgressFunc
	loadCtx     context.Context
	loadCancel  context.CancelFunc
}

func NewCache(deps Deps, opts ...Option) *Cache {
	c := &Cache{
		deps:   deps,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.deps.Strategy == "" {
		c.deps.Strategy = MostProgressed
	}
	c.deps.Statuses = append([]string(nil), deps.Statuses...)
	c.loader = NewLoader(deps.VCS, deps.RecordRoot, c.fanout, c.logger)
	c.locator = NewLocator(deps.VCS, deps.RecordRoot, c.batchSize, c.logger)
	return c
}

// SetProgressCallback replaces the progress receiver. nil silences progress.
func (c *Cache) SetProgressCallback(fn func(message string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = fn
}

// StartLoading begins a load in the background unless one is in flight or
// the board is still fresh.
func (c *Cache) StartLoading() {
	if c.IsLoading() {
		return
	}
	c.mu.Lock()
	fresh := c.freshLocked()
	c.mu.Unlock()
	if fresh {
		return
	}
	c.launch()
}

func (c *Cache) IsLoading() bool {
	return c.loading.Load()
}

// IsReady reports whether Result can answer without waiting for a load.
func (c *Cache) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && !c.invalidated
}

func (c *Cache) State() State {
	if c.IsLoading() {
		return StateLoading
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.current == nil:
		return StateIdle
	case c.freshLocked():
		return StateReady
	}
	return StateStale
}

// Invalidate marks the board stale. The next Result waits for a reload but
// falls back to the previous board if that reload fails.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = true
}

// Seed installs a previously computed board, for example one restored from a
// shared snapshot store. A seeded board is stale from the start: Result
// serves it while the first reconciliation runs. It never replaces a board
// this cache computed.
func (c *Cache) Seed(board store.Board) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return
	}
	c.current = &entry{board: board.Clone(), at: board.ComputedAt, seeded: true}
}

// Cancel stops the in-flight load at its next phase boundary. Waiting
// callers receive ErrCancelled. The current board is kept.
func (c *Cache) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadCancel != nil {
		c.loadCancel()
	}
}

// Result returns the reconciled board. A fresh board is returned directly. A
// board past its TTL is returned while a reload starts in the background.
// Otherwise Result waits for the shared load.
func (c *Cache) Result(ctx context.Context) (store.Board, error) {
	c.mu.Lock()
	cur := c.current
	fresh := c.freshLocked()
	invalidated := c.invalidated
	c.mu.Unlock()

	if cur != nil && fresh {
		return cur.board.Clone(), nil
	}
	if cur != nil && !invalidated {
		c.StartLoading()
		return cur.board.Clone(), nil
	}

	ch := c.launch()
	select {
	case <-ctx.Done():
		return store.Board{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrCancelled) {
				return store.Board{}, ErrCancelled
			}
			if cur != nil {
				c.logger.Printf("reconcile: reload failed, serving previous board: %v", res.Err)
				return cur.board.Clone(), nil
			}
			return store.Board{}, res.Err
		}
		return res.Val.(store.Board).Clone(), nil
	}
}

func (c *Cache) freshLocked() bool {
	if c.current == nil || c.current.seeded || c.invalidated {
		return false
	}
	return c.now().Sub(c.current.at) < c.ttl
}

func (c *Cache) launch() <-chan singleflight.Result {
	c.mu.Lock()
	if c.loadCtx == nil {
		c.loadCtx, c.loadCancel = context.WithCancel(context.Background())
	}
	c.mu.Unlock()
	c.loading.Store(true)
	return c.group.DoChan(loadKey, c.run)
}

func (c *Cache) run() (any, error) {
	defer c.loading.Store(false)

	c.mu.Lock()
	if c.freshLocked() {
		board := c.current.board
		c.mu.Unlock()
		return board, nil
	}
	if c.loadCtx == nil {
		c.loadCtx, c.loadCancel = context.WithCancel(context.Background())
	}
	ctx, cancel := c.loadCtx, c.loadCancel
	progress := c.progress
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.loadCtx == ctx {
			c.loadCtx, c.loadCancel = nil, nil
		}
		c.mu.Unlock()
		cancel()
	}()

	runID := uuid.NewString()
	started := c.now()
	board, err := c.reconcile(ctx, runID, progress)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			c.logger.Printf("reconcile: load %s cancelled", runID)
		} else {
			c.logger.Printf("reconcile: load %s failed: %v", runID, err)
		}
		return nil, err
	}

	c.mu.Lock()
	c.current = &entry{board: board, at: board.ComputedAt}
	c.invalidated = false
	c.mu.Unlock()
	c.logger.Printf("reconcile: load %s produced %d tasks in %s", runID, len(board.Tasks), c.now().Sub(started))

	c.publish(board)
	return board, nil
}

func (c *Cache) reconcile(ctx context.Context, runID string, progress ProgressFunc) (store.Board, error) {
	progress.emit("Loading local tasks...")
	local, err := c.deps.Local.ListActive(ctx)
	if err != nil {
		if checkpoint(ctx) != nil {
			return store.Board{}, ErrCancelled
		}
		return store.Board{}, fmt.Errorf("list local tasks: %w", err)
	}
	if err := checkpoint(ctx); err != nil {
		return store.Board{}, err
	}

	merged := make(map[string]store.Task, len(local))
	for _, task := range local {
		if existing, ok := merged[task.ID]; ok {
			task = Resolve(existing, task, c.deps.Statuses, c.deps.Strategy)
		}
		merged[task.ID] = task
	}

	if !c.deps.RemoteEnabled {
		progress.emit("Remote operations disabled, showing local tasks only")
		return c.board(runID, merged), nil
	}

	remote, err := c.loader.Load(ctx, progress)
	if err != nil {
		return store.Board{}, err
	}

	for _, batch := range groupByBranch(remote) {
		if err := checkpoint(ctx); err != nil {
			return store.Board{}, err
		}
		for _, task := range batch {
			if existing, ok := merged[task.ID]; ok {
				task = Resolve(existing, task, c.deps.Statuses, c.deps.Strategy)
			}
			merged[task.ID] = task
		}
	}
	if err := checkpoint(ctx); err != nil {
		return store.Board{}, err
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return store.CompareIDs(ids[i], ids[j]) < 0 })

	progress.emit(fmt.Sprintf("Checking lifecycle of %d tasks across branches...", len(ids)))
	latest, err := c.locator.LocateAll(ctx, ids)
	if err != nil {
		return store.Board{}, err
	}
	hidden := 0
	for id, sighting := range latest {
		if sighting.Stage == store.StageActive {
			continue
		}
		if _, ok := merged[id]; ok {
			delete(merged, id)
			hidden++
		}
	}
	if hidden > 0 {
		progress.emit(fmt.Sprintf("Hid %d tasks moved out of the active directory on other branches", hidden))
	}
	return c.board(runID, merged), nil
}

func (c *Cache) board(runID string, merged map[string]store.Task) store.Board {
	tasks := make([]store.Task, 0, len(merged))
	for _, task := range merged {
		tasks = append(tasks, task)
	}
	store.SortTasks(tasks)
	return store.Board{
		RunID:      runID,
		Tasks:      tasks,
		Statuses:   append([]string(nil), c.deps.Statuses...),
		ComputedAt: c.now(),
	}
}

func (c *Cache) publish(board store.Board) {
	for _, p := range c.publishers {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.Publish(ctx, board.Clone()); err != nil {
			c.logger.Printf("reconcile: publish board %s: %v", board.RunID, err)
		}
		cancel()
	}
}

// groupByBranch keeps the loader's branch order so folding is repeatable.
func groupByBranch(tasks []store.Task) [][]store.Task {
	var (
		groups [][]store.Task
		index  = map[string]int{}
	)
	for _, task := range tasks {
		i, ok := index[task.Origin.Branch]
		if !ok {
			i = len(groups)
			index[task.Origin.Branch] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], task)
	}
	return groups
}
