package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"boardsync/internal/reconcile"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"BOARDSYNC_CONFIG", "BOARDSYNC_REPO_DIR", "BOARDSYNC_RECORD_ROOT", "BOARDSYNC_CACHE_TTL_SECONDS", "REDIS_URL", "MEILI_URL"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RepoDir != "." || cfg.RecordRoot != "backlog" || cfg.CacheTTL != 5*time.Minute || cfg.LocateBatchSize != 50 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RedisURL != "" || cfg.MeiliURL != "" {
		t.Fatalf("integrations should default to disabled: %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boardsync.toml")
	content := "record_root = \"tracker\"\ncache_ttl_seconds = 60\nredis_url = \"redis://cache:6379/1\"\nremote_fanout = 8\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BOARDSYNC_CONFIG", path)
	t.Setenv("BOARDSYNC_CACHE_TTL_SECONDS", "120")
	t.Setenv("BOARDSYNC_RECORD_ROOT", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RecordRoot != "tracker" || cfg.RedisURL != "redis://cache:6379/1" || cfg.RemoteFanout != 8 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.CacheTTL != 2*time.Minute {
		t.Fatalf("env should win over file, got %s", cfg.CacheTTL)
	}
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("record_root = ["), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BOARDSYNC_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Fatal("expected decode error")
	}
}

func writeProject(t *testing.T, content string) string {
	t.Helper()
	repo := t.TempDir()
	dir := filepath.Join(repo, "backlog")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	return repo
}

func TestLoadProject(t *testing.T) {
	repo := writeProject(t, "project_name: demo\nstatuses: [\"Backlog\", \"Doing\", \"Shipped\"]\ntask_resolution_strategy: most_recent\nremote_operations: false\n")
	project, err := LoadProject(repo, "backlog")
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	if len(project.Statuses) != 3 || project.Statuses[2] != "Shipped" {
		t.Fatalf("unexpected statuses: %v", project.Statuses)
	}
	if project.Strategy() != reconcile.MostRecent {
		t.Fatalf("Strategy() = %s", project.Strategy())
	}
	if project.RemoteEnabled() {
		t.Fatal("remote operations should be disabled")
	}
}

func TestLoadProjectDefaults(t *testing.T) {
	project, err := LoadProject(t.TempDir(), "backlog")
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	if len(project.Statuses) != 3 || project.Strategy() != reconcile.MostProgressed || !project.RemoteEnabled() {
		t.Fatalf("unexpected defaults: %+v", project)
	}
}

func TestLoadProjectRejectsMalformedStatuses(t *testing.T) {
	cases := map[string]string{
		"empty":     "statuses: []\n",
		"blank":     "statuses: [\"To Do\", \" \"]\n",
		"duplicate": "statuses: [\"To Do\", \"to do\"]\n",
		"strategy":  "task_resolution_strategy: coin_flip\n",
		"yaml":      "statuses: [unterminated\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadProject(writeProject(t, content), "backlog"); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
