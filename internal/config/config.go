package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Secrets (FTP credentials, admin password hash) are normally
// supplied out of band through the environment or a .env file next to the
// config; see applyEnv.

// Environment variables that override the YAML file.
const (
	EnvFTPHost           = "EVBOARD_FTP_HOST"
	EnvFTPUser           = "EVBOARD_FTP_USER"
	EnvFTPPassword       = "EVBOARD_FTP_PASSWORD"
	EnvAdminUser         = "EVBOARD_ADMIN_USER"
	EnvAdminPasswordHash = "EVBOARD_ADMIN_PASSWORD_HASH"
)

// ArchiveConfig describes where the event archive is read from and written to.
type ArchiveConfig struct {
	// URL is the public CSV archive feed fetched on every render.
	URL string `yaml:"url" json:"url"`
	// CacheDir keeps the last good feed body plus ETag/Last-Modified.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// RemotePath is the archive file on the file store (full overwrite).
	RemotePath string `yaml:"remote_path" json:"remote_path"`
	// LogPath is the append-only audit log on the file store.
	LogPath string `yaml:"log_path" json:"log_path"`
	// Store selects the archive store backend: "ftp" or "file".
	Store string `yaml:"store" json:"store"`
	// LocalDir is the root directory for the "file" store.
	LocalDir string `yaml:"local_dir" json:"local_dir"`
}

// ShowroomConfig holds the upstream REST endpoints.
type ShowroomConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	// SearchStatuses are the status codes queried on the live event search.
	SearchStatuses []int `yaml:"search_statuses" json:"search_statuses"`
	// MaxPages bounds pagination of the live search and the room list.
	MaxPages int `yaml:"max_pages" json:"max_pages"`
	// UseLive toggles the live API as primary source. When false only the
	// archive feed is used.
	UseLive bool `yaml:"use_live" json:"use_live"`
}

// EnrichConfig controls the participant-count worker pool.
type EnrichConfig struct {
	Workers      int           `yaml:"workers" json:"workers"`
	CallTimeout  time.Duration `yaml:"call_timeout" json:"call_timeout"`
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
}

// FilterConfig holds the window filter defaults.
type FilterConfig struct {
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
	// ExcludedIDs are hidden in addition to the built-in sentinel id.
	ExcludedIDs []string `yaml:"excluded_ids" json:"excluded_ids"`
}

// FTPConfig holds credentials for the archive file store.
type FTPConfig struct {
	Host     string        `yaml:"host" json:"host"`
	User     string        `yaml:"user" json:"user"`
	Password string        `yaml:"password" json:"-"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// AuthConfig gates the admin endpoints with HTTP Basic Auth. PasswordHash is
// a bcrypt hash.
type AuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"-"`
}

// CaptureConfig controls the headless-Chromium snapshot endpoint.
type CaptureConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Width   int           `yaml:"width" json:"width"`
	Height  int           `yaml:"height" json:"height"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the dashboard.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for display and date filters.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule for the archive update job.
	// Empty disables the scheduler.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheTTL bounds how long a loaded event set is reused across requests.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	Archive  ArchiveConfig  `yaml:"archive" json:"archive"`
	Showroom ShowroomConfig `yaml:"showroom" json:"showroom"`
	Enrich   EnrichConfig   `yaml:"enrich" json:"enrich"`
	Filter   FilterConfig   `yaml:"filter" json:"filter"`
	FTP      FTPConfig      `yaml:"ftp" json:"ftp"`
	Auth     AuthConfig     `yaml:"auth" json:"auth"`
	Capture  CaptureConfig  `yaml:"capture" json:"capture"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Tokyo",
		LogLevel:    "info",
		RefreshCron: "",
		CacheTTL:    5 * time.Minute,
		Archive: ArchiveConfig{
			URL:        "https://mksoul-pro.com/showroom/file/sr-event-archive.csv",
			CacheDir:   "./cache/archive",
			RemotePath: "/showroom/file/sr-event-archive.csv",
			LogPath:    "/showroom/file/sr-event-archive-log.txt",
			Store:      "ftp",
			LocalDir:   "./data",
		},
		Showroom: ShowroomConfig{
			BaseURL:        "https://www.showroom-live.com",
			UserAgent:      "evboard/0.1",
			Timeout:        8 * time.Second,
			SearchStatuses: []int{1, 3, 4},
			MaxPages:       20,
			UseLive:        true,
		},
		Enrich: EnrichConfig{
			Workers:      10,
			CallTimeout:  8 * time.Second,
			BatchTimeout: 30 * time.Second,
		},
		Filter: FilterConfig{
			RetentionDays: 14,
		},
		FTP: FTPConfig{
			Timeout: 15 * time.Second,
		},
		Capture: CaptureConfig{
			Width:   1280,
			Height:  1600,
			Timeout: 30 * time.Second,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}

	if c.Archive.CacheDir == "" {
		c.Archive.CacheDir = def.Archive.CacheDir
	}
	if c.Archive.RemotePath == "" {
		c.Archive.RemotePath = def.Archive.RemotePath
	}
	if c.Archive.LogPath == "" {
		c.Archive.LogPath = def.Archive.LogPath
	}
	switch c.Archive.Store {
	case "ftp", "file":
		// ok
	default:
		c.Archive.Store = def.Archive.Store
	}
	if c.Archive.LocalDir == "" {
		c.Archive.LocalDir = def.Archive.LocalDir
	}

	if c.Showroom.BaseURL == "" {
		c.Showroom.BaseURL = def.Showroom.BaseURL
	}
	c.Showroom.BaseURL = strings.TrimRight(c.Showroom.BaseURL, "/")
	if c.Showroom.Timeout <= 0 {
		c.Showroom.Timeout = def.Showroom.Timeout
	}
	if len(c.Showroom.SearchStatuses) == 0 {
		c.Showroom.SearchStatuses = def.Showroom.SearchStatuses
	}
	if c.Showroom.MaxPages <= 0 {
		c.Showroom.MaxPages = def.Showroom.MaxPages
	}

	if c.Enrich.Workers <= 0 {
		c.Enrich.Workers = def.Enrich.Workers
	}
	if c.Enrich.CallTimeout <= 0 {
		c.Enrich.CallTimeout = def.Enrich.CallTimeout
	}
	if c.Enrich.BatchTimeout < 0 {
		c.Enrich.BatchTimeout = 0
	}

	if c.Filter.RetentionDays <= 0 {
		c.Filter.RetentionDays = def.Filter.RetentionDays
	}

	if c.FTP.Timeout <= 0 {
		c.FTP.Timeout = def.FTP.Timeout
	}

	if c.Capture.Width <= 0 {
		c.Capture.Width = def.Capture.Width
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = def.Capture.Height
	}
	if c.Capture.Timeout <= 0 {
		c.Capture.Timeout = def.Capture.Timeout
	}
}

// Retention returns the finished-event retention window.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Filter.RetentionDays) * 24 * time.Hour
}

// Location resolves Timezone, falling back to a fixed JST offset when the
// zone database is unavailable.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - A .env file next to the config (if any) is loaded into the process
//     environment without overriding variables that are already set.
//   - If the config file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal over DefaultConfig
//   - normalize defaults
//   - In both cases environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.applyEnv()
				return cfg, err
			}
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	// Unmarshal over the defaults so omitted keys (including booleans that
	// default to true) keep their default values.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.applyEnv()

	return cfg, nil
}

// applyEnv overlays secrets from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvFTPHost); v != "" {
		c.FTP.Host = v
	}
	if v := os.Getenv(EnvFTPUser); v != "" {
		c.FTP.User = v
	}
	if v := os.Getenv(EnvFTPPassword); v != "" {
		c.FTP.Password = v
	}
	if v := os.Getenv(EnvAdminUser); v != "" {
		c.Auth.Username = v
	}
	if v := os.Getenv(EnvAdminPasswordHash); v != "" {
		c.Auth.PasswordHash = v
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".evboard-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
