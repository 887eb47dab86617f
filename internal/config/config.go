package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/davsync/propagator/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".davsync", "config.json")
	DefaultJournalDir = filepath.Join(home, ".davsync")
)

// Config is the on-disk, per-run configuration: where the local tree lives,
// which WebDAV server it syncs against, and the bandwidth/rename knobs below.
type Config struct {
	LocalRoot string `json:"local_root"`
	RemoteURL string `json:"remote_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`

	// UploadLimit/DownloadLimit: 0 disables, >0 is an absolute bytes/sec
	// cap, -1..-99 is a percentage-of-line-rate cap.
	UploadLimit   int64 `json:"upload_limit"`
	DownloadLimit int64 `json:"download_limit"`

	// StrictRenameMetadata escalates a MOVE-succeeded-but-metadata-refresh-
	// failed outcome from Soft to Normal.
	StrictRenameMetadata bool `json:"strict_rename_metadata"`

	JournalPath string `json:"journal_path"`

	Path string `json:"-"`
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Path = path

	if cfg.JournalPath == "" {
		cfg.JournalPath = filepath.Join(DefaultJournalDir, "journal.db")
	}

	return &cfg, nil
}

// Validate checks the fields Run needs before it will open a journal or
// dial the server. It also resolves LocalRoot to an absolute, tilde-
// expanded path and confirms it's a writable directory, since every job
// the engine runs joins paths onto it directly.
func (c *Config) Validate() error {
	if c.LocalRoot == "" {
		return fmt.Errorf("local_root is required")
	}
	if c.RemoteURL == "" {
		return fmt.Errorf("remote_url is required")
	}
	if c.UploadLimit < -99 {
		return fmt.Errorf("upload_limit: percentage caps must be between -99 and -1")
	}
	if c.DownloadLimit < -99 {
		return fmt.Errorf("download_limit: percentage caps must be between -99 and -1")
	}

	resolved, err := utils.ResolvePath(c.LocalRoot)
	if err != nil {
		return fmt.Errorf("local_root: %w", err)
	}
	if !utils.DirExists(resolved) {
		return fmt.Errorf("local_root %q is not a directory", resolved)
	}
	if !utils.IsWritable(resolved) {
		return fmt.Errorf("local_root %q is not writable", resolved)
	}
	c.LocalRoot = resolved

	return nil
}
