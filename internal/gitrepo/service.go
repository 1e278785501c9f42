package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"boardsync/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Service reads branches, trees and file history from a git repository.
// go-git object access is not safe for concurrent use, so every call takes
// the repository lock.
type Service struct {
	repo   *git.Repository
	mu     sync.Mutex
	logger *log.Logger
}

func Open(dir string, logger *log.Logger) (*Service, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return New(repo, logger), nil
}

func New(repo *git.Repository, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Fetch updates remote-tracking refs for every configured remote. A
// repository without remotes has nothing to fetch.
func (s *Service) Fetch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remotes, err := s.repo.Remotes()
	if err != nil {
		return fmt.Errorf("list remotes: %w", err)
	}
	var errs []error
	for _, remote := range remotes {
		name := remote.Config().Name
		err := s.repo.FetchContext(ctx, &git.FetchOptions{RemoteName: name})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			errs = append(errs, fmt.Errorf("fetch %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ListRemoteBranches returns remote-tracking branch names such as
// origin/feature. Symbolic refs like origin/HEAD are skipped.
func (s *Service) ListRemoteBranches(ctx context.Context) ([]string, error) {
	branches, err := s.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(branches))
	for _, branch := range branches {
		if branch.Remote {
			names = append(names, branch.Name)
		}
	}
	return names, nil
}

// ListBranches returns local heads followed by remote-tracking branches.
func (s *Service) ListBranches(ctx context.Context) ([]store.BranchRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.repo.References()
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer iter.Close()

	var local, remote []store.BranchRef
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		switch {
		case name.IsBranch():
			local = append(local, store.BranchRef{Name: name.Short()})
		case name.IsRemote():
			if strings.HasSuffix(name.String(), "/HEAD") {
				return nil
			}
			remote = append(remote, store.BranchRef{Name: name.Short(), Remote: true})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	sortBranches(local)
	sortBranches(remote)
	return append(local, remote...), nil
}

// ListFiles returns the slash-separated paths of files directly inside dir
// at ref. A directory missing at ref yields an empty list.
func (s *Service) ListFiles(ctx context.Context, ref, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	commitObj, err := s.commitAt(ref)
	if err != nil {
		return nil, err
	}
	tree, err := commitObj.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree at %s: %w", ref, err)
	}
	dir = strings.Trim(path.Clean(dir), "/")
	sub := tree
	if dir != "" && dir != "." {
		sub, err = tree.Tree(dir)
		if err != nil {
			if errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, object.ErrEntryNotFound) {
				return []string{}, nil
			}
			return nil, fmt.Errorf("load %s at %s: %w", dir, ref, err)
		}
	}
	files := make([]string, 0, len(sub.Entries))
	for _, entry := range sub.Entries {
		if !entry.Mode.IsFile() {
			continue
		}
		files = append(files, path.Join(dir, entry.Name))
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile returns the content of filePath at ref.
func (s *Service) ReadFile(ctx context.Context, ref, filePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	commitObj, err := s.commitAt(ref)
	if err != nil {
		return "", err
	}
	file, err := commitObj.File(filePath)
	if err != nil {
		return "", fmt.Errorf("load %s at %s: %w", filePath, ref, err)
	}
	content, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s at %s: %w", filePath, ref, err)
	}
	return content, nil
}

// LastModified returns the committer time of the newest commit reachable
// from ref that touched filePath. ok is false when no commit touched it.
func (s *Service) LastModified(ctx context.Context, ref, filePath string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := s.resolve(ref)
	if err != nil {
		return time.Time{}, false, err
	}
	name := filePath
	iter, err := s.repo.Log(&git.LogOptions{From: hash, FileName: &name})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read log for %s at %s: %w", filePath, ref, err)
	}
	defer iter.Close()

	var when time.Time
	found := false
	err = iter.ForEach(func(commitObj *object.Commit) error {
		when = commitObj.Committer.When
		found = true
		return io.EOF
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return time.Time{}, false, fmt.Errorf("iterate log for %s at %s: %w", filePath, ref, err)
	}
	return when, found, nil
}

func (s *Service) commitAt(ref string) (*object.Commit, error) {
	hash, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	commitObj, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("load commit at %s: %w", ref, err)
	}
	return commitObj, nil
}

func (s *Service) resolve(ref string) (plumbing.Hash, error) {
	if len(ref) == 40 && plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}
	resolved, err := s.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return *resolved, nil
}

func sortBranches(branches []store.BranchRef) {
	sort.Slice(branches, func(i, j int) bool {
		return branches[i].Name < branches[j].Name
	})
}
