package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"boardsync/internal/reconcile"

	"gopkg.in/yaml.v3"
)

var DefaultStatuses = []string{"To Do", "In Progress", "Done"}

// Project is the board configuration stored next to the records in
// <root>/config.yml.
type Project struct {
	Statuses           []string `yaml:"statuses"`
	ResolutionStrategy string   `yaml:"task_resolution_strategy"`
	RemoteOperations   *bool    `yaml:"remote_operations"`
}

// LoadProject reads <repoDir>/<root>/config.yml. A missing file yields the
// defaults; a malformed one is an error.
func LoadProject(repoDir, root string) (Project, error) {
	path := filepath.Join(repoDir, filepath.FromSlash(root), "config.yml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Project{Statuses: append([]string(nil), DefaultStatuses...)}, nil
		}
		return Project{}, fmt.Errorf("read project config: %w", err)
	}
	var project Project
	if err := yaml.Unmarshal(raw, &project); err != nil {
		return Project{}, fmt.Errorf("decode project config: %w", err)
	}
	if project.Statuses == nil {
		project.Statuses = append([]string(nil), DefaultStatuses...)
	}
	if err := project.Validate(); err != nil {
		return Project{}, err
	}
	return project, nil
}

// Validate rejects configurations the reconciler cannot work with.
func (p Project) Validate() error {
	if len(p.Statuses) == 0 {
		return fmt.Errorf("project config: statuses must not be empty")
	}
	seen := make(map[string]struct{}, len(p.Statuses))
	for _, status := range p.Statuses {
		key := strings.ToLower(strings.TrimSpace(status))
		if key == "" {
			return fmt.Errorf("project config: statuses must not contain blank entries")
		}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("project config: duplicate status %q", status)
		}
		seen[key] = struct{}{}
	}
	if _, err := reconcile.ParseStrategy(p.ResolutionStrategy); err != nil {
		return fmt.Errorf("project config: %w", err)
	}
	return nil
}

func (p Project) Strategy() reconcile.Strategy {
	strategy, err := reconcile.ParseStrategy(p.ResolutionStrategy)
	if err != nil {
		return reconcile.MostProgressed
	}
	return strategy
}

// RemoteEnabled defaults to true when the key is absent.
func (p Project) RemoteEnabled() bool {
	return p.RemoteOperations == nil || *p.RemoteOperations
}
