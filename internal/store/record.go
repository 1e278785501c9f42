package store

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrNoFrontmatter = errors.New("record has no frontmatter")

type frontmatter struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Status      string    `yaml:"status"`
	Assignee    yamlList  `yaml:"assignee"`
	Labels      yamlList  `yaml:"labels"`
	CreatedDate yamlStamp `yaml:"created_date"`
	UpdatedDate yamlStamp `yaml:"updated_date"`
}

// yamlList accepts either a scalar or a sequence.
type yamlList []string

func (l *yamlList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if strings.TrimSpace(node.Value) != "" {
			*l = yamlList{strings.TrimSpace(node.Value)}
		}
		return nil
	case yaml.SequenceNode:
		var values []string
		if err := node.Decode(&values); err != nil {
			return err
		}
		*l = values
		return nil
	}
	return fmt.Errorf("expected string or list at line %d", node.Line)
}

type yamlStamp struct {
	t *time.Time
}

var stampLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

func (s *yamlStamp) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		return nil
	}
	parsed, err := ParseStamp(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	s.t = &parsed
	return nil
}

// ParseStamp parses the date formats written into record frontmatter.
func ParseStamp(raw string) (time.Time, error) {
	for _, layout := range stampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

// ParseTask reads a markdown record with a YAML frontmatter block.
func ParseTask(content string) (Task, error) {
	body := strings.TrimLeft(content, "\ufeff \t\r\n")
	if !strings.HasPrefix(body, "---") {
		return Task{}, ErrNoFrontmatter
	}
	body = strings.TrimPrefix(body, "---")
	end := strings.Index(body, "\n---")
	if end < 0 {
		return Task{}, ErrNoFrontmatter
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(body[:end]), &fm); err != nil {
		return Task{}, fmt.Errorf("decode frontmatter: %w", err)
	}
	id := strings.TrimSpace(fm.ID)
	if id == "" {
		return Task{}, fmt.Errorf("frontmatter missing id")
	}
	return Task{
		ID:          id,
		Title:       strings.TrimSpace(fm.Title),
		Status:      strings.TrimSpace(fm.Status),
		Assignee:    []string(fm.Assignee),
		Labels:      []string(fm.Labels),
		CreatedDate: fm.CreatedDate.t,
		UpdatedDate: fm.UpdatedDate.t,
	}, nil
}

// StageDir returns the slash-separated directory holding records of stage.
func StageDir(root string, stage Stage) string {
	switch stage {
	case StageDraft:
		return path.Join(root, "drafts")
	case StageArchived:
		return path.Join(root, "archive", "tasks")
	default:
		return path.Join(root, "tasks")
	}
}

// StageForPath maps a record path back to its lifecycle stage.
func StageForPath(root, recordPath string) (Stage, bool) {
	dir := path.Dir(path.Clean(strings.ReplaceAll(recordPath, "\\", "/")))
	for _, stage := range Stages {
		if dir == StageDir(root, stage) {
			return stage, true
		}
	}
	return "", false
}

// IsRecordFile filters directory listings down to task records.
func IsRecordFile(name string) bool {
	base := path.Base(name)
	return strings.HasSuffix(strings.ToLower(base), ".md") && !strings.HasPrefix(base, ".")
}
