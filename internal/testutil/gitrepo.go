// Package testutil builds real git repositories for tests.
package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitRepo is a throwaway repository whose default branch is main.
type GitRepo struct {
	Dir  string
	Repo *git.Repository
	t    *testing.T
}

// NewGitRepo initialises a repository with a single README commit on main.
func NewGitRepo(t *testing.T, when time.Time) *GitRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	g := &GitRepo{Dir: dir, Repo: repo, t: t}

	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("open worktree: %v", err)
	}
	g.write("README.md", "# board\n")
	if _, err := worktree.Add("README.md"); err != nil {
		t.Fatalf("git add README: %v", err)
	}
	hash, err := worktree.Commit("Initial commit", g.commitOptions(when))
	if err != nil {
		t.Fatalf("commit README: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		t.Fatalf("set main branch ref: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		t.Fatalf("set HEAD to main: %v", err)
	}
	if err := repo.Storer.RemoveReference(plumbing.Master); err != nil {
		t.Fatalf("remove master ref: %v", err)
	}
	return g
}

// Commit checks out branch (creating it from HEAD when missing), writes and
// removes the given slash-separated paths and commits at when.
func (g *GitRepo) Commit(branch string, when time.Time, write map[string]string, remove ...string) plumbing.Hash {
	g.t.Helper()
	g.checkout(branch)

	worktree, err := g.Repo.Worktree()
	if err != nil {
		g.t.Fatalf("open worktree: %v", err)
	}
	for name, content := range write {
		g.write(name, content)
		if _, err := worktree.Add(name); err != nil {
			g.t.Fatalf("git add %s: %v", name, err)
		}
	}
	for _, name := range remove {
		if _, err := worktree.Remove(name); err != nil {
			g.t.Fatalf("git rm %s: %v", name, err)
		}
	}
	hash, err := worktree.Commit("Update "+branch, g.commitOptions(when))
	if err != nil {
		g.t.Fatalf("commit on %s: %v", branch, err)
	}
	return hash
}

// Move renames a file on branch in a single commit.
func (g *GitRepo) Move(branch string, when time.Time, from, to, content string) plumbing.Hash {
	g.t.Helper()
	return g.Commit(branch, when, map[string]string{to: content}, from)
}

// Track points the remote-tracking ref remote/branch at the head of the
// local branch, as a fetch would have done.
func (g *GitRepo) Track(remote, branch string) {
	g.t.Helper()
	ref, err := g.Repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		g.t.Fatalf("resolve branch %s: %v", branch, err)
	}
	name := plumbing.NewRemoteReferenceName(remote, branch)
	if err := g.Repo.Storer.SetReference(plumbing.NewHashReference(name, ref.Hash())); err != nil {
		g.t.Fatalf("set remote ref %s: %v", name, err)
	}
}

// Checkout switches the worktree back to branch.
func (g *GitRepo) Checkout(branch string) {
	g.t.Helper()
	g.checkout(branch)
}

func (g *GitRepo) checkout(branch string) {
	worktree, err := g.Repo.Worktree()
	if err != nil {
		g.t.Fatalf("open worktree: %v", err)
	}
	branchRef := plumbing.NewBranchReferenceName(branch)
	if _, err := g.Repo.Reference(branchRef, true); err != nil {
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			g.t.Fatalf("resolve branch %s: %v", branch, err)
		}
		if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
			g.t.Fatalf("create branch checkout %s: %v", branch, err)
		}
		return
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		g.t.Fatalf("checkout branch %s: %v", branch, err)
	}
}

func (g *GitRepo) write(name, content string) {
	full := filepath.Join(g.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		g.t.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		g.t.Fatalf("write %s: %v", name, err)
	}
}

func (g *GitRepo) commitOptions(when time.Time) *git.CommitOptions {
	sig := &object.Signature{Name: "Avery", Email: "avery@local.boardsync.dev", When: when}
	return &git.CommitOptions{Author: sig, Committer: sig}
}

// Record renders a task record in the on-disk format.
func Record(id, title, status string) string {
	return "---\nid: " + id + "\ntitle: " + title + "\nstatus: " + status + "\n---\n\n## Description\n"
}
