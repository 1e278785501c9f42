package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// FileStore reads task records from the working tree of the repository.
type FileStore struct {
	repoDir string
	root    string
	logger  *log.Logger
}

func NewFileStore(repoDir, root string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.Default()
	}
	return &FileStore{repoDir: repoDir, root: root, logger: logger}
}

// ListActive returns every parsable record in the active task directory.
// A missing directory is an empty board, not an error.
func (s *FileStore) ListActive(ctx context.Context) ([]Task, error) {
	dir := filepath.Join(s.repoDir, filepath.FromSlash(StageDir(s.root, StageActive)))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Task{}, nil
		}
		return nil, fmt.Errorf("read task dir: %w", err)
	}

	tasks := make([]Task, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !IsRecordFile(entry.Name()) {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(full)
		if err != nil {
			s.logger.Printf("store: read %s: %v", full, err)
			continue
		}
		task, err := ParseTask(string(raw))
		if err != nil {
			s.logger.Printf("store: parse %s: %v", full, err)
			continue
		}
		if info, err := entry.Info(); err == nil {
			modTime := info.ModTime()
			task.ModTime = &modTime
		}
		task.Stage = StageActive
		task.Origin = LocalOrigin
		task.Path = filepath.ToSlash(filepath.Join(StageDir(s.root, StageActive), entry.Name()))
		tasks = append(tasks, task)
	}
	SortTasks(tasks)
	return tasks, nil
}

// SortTasks orders tasks by identifier in place.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return CompareIDs(tasks[i].ID, tasks[j].ID) < 0
	})
}
