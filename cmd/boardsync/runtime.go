package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"boardsync/internal/config"
	"boardsync/internal/gitrepo"
	"boardsync/internal/reconcile"
	"boardsync/internal/search"
	"boardsync/internal/snapshot"
	"boardsync/internal/store"
)

type globalOptions struct {
	repoDir    string
	recordRoot string
	quiet      bool
}

// runtime holds the wired collaborators for one command invocation.
type runtime struct {
	cfg     config.Config
	project config.Project
	logger  *log.Logger
	cache   *reconcile.Cache
	search  *search.Service
	closers []func()
}

func openRuntime(opts *globalOptions) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.repoDir != "" {
		cfg.RepoDir = opts.repoDir
	}
	if opts.recordRoot != "" {
		cfg.RecordRoot = opts.recordRoot
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if opts.quiet {
		logger = log.New(io.Discard, "", 0)
	}

	project, err := config.LoadProject(cfg.RepoDir, cfg.RecordRoot)
	if err != nil {
		return nil, err
	}

	repo, err := gitrepo.Open(cfg.RepoDir, logger)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, project: project, logger: logger}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	rt.search = search.NewService(meiliClient, logger)
	rt.closers = append(rt.closers, rt.search.Close)

	cacheOpts := []reconcile.Option{
		reconcile.WithTTL(cfg.CacheTTL),
		reconcile.WithLogger(logger),
		reconcile.WithBatchSize(cfg.LocateBatchSize),
		reconcile.WithRemoteFanout(cfg.RemoteFanout),
		reconcile.WithPublisher(rt.search),
	}

	var mirror *snapshot.Mirror
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := snapshot.NewRedisStore(cfg.RedisURL, cfg.SnapshotTTL)
		if err != nil {
			// The snapshot only speeds up startup; reconcile without it.
			logger.Printf("snapshot: redis unavailable, continuing without it: %v", err)
		} else {
			rt.closers = append(rt.closers, func() { redisStore.Close() })
			mirror = redisStore.For(cfg.RecordRoot)
			cacheOpts = append(cacheOpts, reconcile.WithPublisher(mirror))
		}
	}

	rt.cache = reconcile.NewCache(reconcile.Deps{
		VCS:           repo,
		Local:         store.NewFileStore(cfg.RepoDir, cfg.RecordRoot, logger),
		RecordRoot:    cfg.RecordRoot,
		Statuses:      project.Statuses,
		Strategy:      project.Strategy(),
		RemoteEnabled: project.RemoteEnabled(),
	}, cacheOpts...)

	if !opts.quiet {
		rt.cache.SetProgressCallback(func(message string) {
			fmt.Fprintln(os.Stderr, message)
		})
	}

	if mirror != nil {
		board, ok, err := mirror.Load(context.Background())
		switch {
		case err != nil:
			logger.Printf("snapshot: load board: %v", err)
		case ok:
			rt.cache.Seed(board)
			if err := rt.search.Publish(context.Background(), board); err != nil {
				logger.Printf("search: index seeded board: %v", err)
			}
		}
	}
	return rt, nil
}

// cancelOnSignal cancels the in-flight load on SIGINT or SIGTERM. The
// returned context is done after the first signal, whether or not a load
// was running.
func (rt *runtime) cancelOnSignal() (context.Context, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ctx, stop := rt.cancelOn(sigCh)
	return ctx, func() {
		signal.Stop(sigCh)
		stop()
	}
}

func (rt *runtime) cancelOn(sigCh <-chan os.Signal) (context.Context, func()) {
	ctx, stop := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigCh:
			rt.cache.Cancel()
			stop()
		case <-ctx.Done():
		}
	}()
	return ctx, stop
}

// result waits for the board. Once ctx is done the caller was signalled, so
// the outcome is ErrCancelled even if a board was available.
func (rt *runtime) result(ctx context.Context) (store.Board, error) {
	if ctx.Err() != nil {
		return store.Board{}, reconcile.ErrCancelled
	}
	board, err := rt.cache.Result(ctx)
	if ctx.Err() != nil {
		return store.Board{}, reconcile.ErrCancelled
	}
	return board, err
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
