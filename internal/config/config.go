// Package config handles loading and managing chatvault configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chatvault/chatvault/internal/fileutil"
)

// Config represents the chatvault configuration.
type Config struct {
	Data     DataConfig       `toml:"data"`
	Import   ImportConfig     `toml:"import"`
	Schedule []ScheduledStore `toml:"schedule"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// ImportConfig holds tunables for the import pipeline. Zero values mean
// "use the default"; Normalize fills them in.
type ImportConfig struct {
	// SourcePath is the Apple Messages database to import from.
	// Defaults to ~/Library/Messages/chat.db.
	SourcePath string `toml:"source_path"`

	// BatchSize is the number of messages inserted per transaction.
	BatchSize int `toml:"batch_size"`

	// DeleteBatchSize bounds each delete batch during a forced reimport.
	DeleteBatchSize int `toml:"delete_batch_size"`

	// PageSizeFloor is the minimum source pagination page size.
	PageSizeFloor int `toml:"page_size_floor"`

	// MaxAttachmentBytes is the per-file ceiling for copied attachments.
	MaxAttachmentBytes int64 `toml:"max_attachment_bytes"`

	// MaxStringLen is the plausibility ceiling for decoded body strings.
	MaxStringLen int `toml:"max_string_len"`

	// LockTimeoutMinutes is how long a held import lock is trusted before
	// being treated as stuck and reset.
	LockTimeoutMinutes int `toml:"lock_timeout_minutes"`
}

// ScheduledStore defines a periodic import schedule for one source store.
type ScheduledStore struct {
	SourcePath string `toml:"source_path"` // path to the chat.db to import
	Schedule   string `toml:"schedule"`    // cron expression (e.g. "0 3 * * *")
	Enabled    bool   `toml:"enabled"`
}

// DefaultHome returns the default chatvault home directory.
// Respects the CHATVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("CHATVAULT_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatvault"
	}
	return filepath.Join(home, ".chatvault")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.chatvault/config.toml).
// A missing config file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.Import.SourcePath = expandPath(cfg.Import.SourcePath)
	cfg.Import.Normalize()

	return cfg, nil
}

// Normalize fills zero-valued tunables with their defaults.
func (ic *ImportConfig) Normalize() {
	if ic.SourcePath == "" {
		ic.SourcePath = DefaultSourcePath()
	}
	if ic.BatchSize <= 0 {
		ic.BatchSize = 500
	}
	if ic.DeleteBatchSize <= 0 {
		ic.DeleteBatchSize = 5000
	}
	if ic.PageSizeFloor <= 0 {
		ic.PageSizeFloor = 500
	}
	if ic.MaxAttachmentBytes <= 0 {
		ic.MaxAttachmentBytes = 100 * 1024 * 1024 // 100MB
	}
	if ic.MaxStringLen <= 0 {
		ic.MaxStringLen = 10000
	}
	if ic.LockTimeoutMinutes <= 0 {
		ic.LockTimeoutMinutes = 10
	}
}

// LockTimeout returns the stuck-lock ceiling as a duration.
func (ic *ImportConfig) LockTimeout() time.Duration {
	return time.Duration(ic.LockTimeoutMinutes) * time.Minute
}

// DefaultSourcePath returns the standard Apple Messages database location.
func DefaultSourcePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Messages", "chat.db")
}

// DatabasePath returns the path to the destination SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "chatvault.db")
}

// AttachmentsDir returns the path to the attachments directory.
func (c *Config) AttachmentsDir() string {
	return filepath.Join(c.Data.DataDir, "attachments")
}

// EnsureHomeDir creates the data directory if it does not exist. Archived
// conversations are private, so the directory is owner-only.
func (c *Config) EnsureHomeDir() error {
	return fileutil.SecureMkdirAll(c.Data.DataDir, 0700)
}

// ScheduledStores returns schedules that are enabled and non-empty.
func (c *Config) ScheduledStores() []ScheduledStore {
	var scheduled []ScheduledStore
	for _, s := range c.Schedule {
		if s.Enabled && s.Schedule != "" && s.SourcePath != "" {
			scheduled = append(scheduled, s)
		}
	}
	return scheduled
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
