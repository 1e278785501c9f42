package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RepoDir         string
	RecordRoot      string
	CacheTTL        time.Duration
	LocateBatchSize int
	RemoteFanout    int
	SnapshotTTL     time.Duration
	RedisURL        string
	MeiliURL        string
	MeiliMasterKey  string
}

// fileConfig mirrors Config in the optional TOML file named by
// BOARDSYNC_CONFIG. Empty RedisURL or MeiliURL disables that integration.
type fileConfig struct {
	RepoDir            string `toml:"repo_dir"`
	RecordRoot         string `toml:"record_root"`
	CacheTTLSeconds    int    `toml:"cache_ttl_seconds"`
	LocateBatchSize    int    `toml:"locate_batch_size"`
	RemoteFanout       int    `toml:"remote_fanout"`
	SnapshotTTLSeconds int    `toml:"snapshot_ttl_seconds"`
	RedisURL           string `toml:"redis_url"`
	MeiliURL           string `toml:"meili_url"`
	MeiliMasterKey     string `toml:"meili_master_key"`
}

// Load reads the process configuration. Environment variables win over the
// TOML file, which wins over built-in defaults.
func Load() (Config, error) {
	var file fileConfig
	if path := os.Getenv("BOARDSYNC_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}
	return Config{
		RepoDir:         getenv("BOARDSYNC_REPO_DIR", orString(file.RepoDir, ".")),
		RecordRoot:      getenv("BOARDSYNC_RECORD_ROOT", orString(file.RecordRoot, "backlog")),
		CacheTTL:        time.Duration(getenvInt("BOARDSYNC_CACHE_TTL_SECONDS", orInt(file.CacheTTLSeconds, 300))) * time.Second,
		LocateBatchSize: getenvInt("BOARDSYNC_LOCATE_BATCH_SIZE", orInt(file.LocateBatchSize, 50)),
		RemoteFanout:    getenvInt("BOARDSYNC_REMOTE_FANOUT", file.RemoteFanout),
		SnapshotTTL:     time.Duration(getenvInt("BOARDSYNC_SNAPSHOT_TTL_SECONDS", orInt(file.SnapshotTTLSeconds, 86400))) * time.Second,
		RedisURL:        getenv("REDIS_URL", file.RedisURL),
		MeiliURL:        getenv("MEILI_URL", file.MeiliURL),
		MeiliMasterKey:  getenv("MEILI_MASTER_KEY", file.MeiliMasterKey),
	}, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func orString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func orInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}
